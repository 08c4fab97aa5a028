package personalize

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/leadsmagics/crm-backend/internal/model"
)

// FallbackName is substituted for {{name}} when a contact has no
// display name.
const FallbackName = "Valued Customer"

// Vars builds the substitution map for one contact. trackingToken may
// be empty (no recipient context, e.g. test sends); extra variables
// from the campaign override built-ins on key collision.
func Vars(contact *model.Contact, trackingToken string, extra map[string]string) map[string]string {
	name := contact.Name
	if name == "" {
		name = FallbackName
	}
	firstName := name
	if fields := strings.Fields(name); len(fields) > 0 {
		firstName = fields[0]
	}

	vars := map[string]string{
		"name":       name,
		"first_name": firstName,
		"email":      contact.Email,
		"company":    contact.CompanyName,
		"job_role":   contact.JobRole,
		"phone":      contact.Phone,
		"location":   contact.CompanyLocation,
	}
	if trackingToken != "" {
		vars["tracking_id"] = trackingToken
	}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}

// Render substitutes {{key}} tokens from vars and bare {key} tokens
// from bareVars in a single pass over text. Substituted values are
// written straight to the output and never re-scanned, so a value
// containing another token cannot be double-substituted. Unknown
// tokens are left verbatim.
func Render(text string, vars, bareVars map[string]string) string {
	if text == "" || (len(vars) == 0 && len(bareVars) == 0) {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		next := strings.IndexByte(text[i:], '{')
		if next < 0 {
			b.WriteString(text[i:])
			break
		}
		b.WriteString(text[i : i+next])
		i += next

		if strings.HasPrefix(text[i:], "{{") {
			if end := strings.Index(text[i+2:], "}}"); end >= 0 {
				key := text[i+2 : i+2+end]
				if v, ok := lookupKey(vars, key); ok {
					b.WriteString(v)
					i += end + 4
					continue
				}
			}
		} else if end := strings.IndexByte(text[i+1:], '}'); end >= 0 {
			key := text[i+1 : i+1+end]
			if v, ok := lookupKey(bareVars, key); ok {
				b.WriteString(v)
				i += end + 2
				continue
			}
		}

		b.WriteByte(text[i])
		i++
	}
	return b.String()
}

func lookupKey(vars map[string]string, key string) (string, bool) {
	if key == "" || strings.ContainsAny(key, "{} \t\n") {
		return "", false
	}
	v, ok := vars[key]
	return v, ok
}

var hrefPattern = regexp.MustCompile(`(<a\s[^>]*?href=)(["'])([^"']*)(["'])`)

// RewriteLinks wraps every anchor href in html with the click-tracking
// redirect for the given recipient token. mailto:, tel:, same-page
// fragments, javascript: and links already pointing at the tracking or
// unsubscribe endpoints are left alone, which also makes the rewrite
// idempotent.
func RewriteLinks(html, baseURL, trackingToken string) string {
	return hrefPattern.ReplaceAllStringFunc(html, func(match string) string {
		parts := hrefPattern.FindStringSubmatch(match)
		href := parts[3]
		if skipRewrite(href) {
			return match
		}
		return parts[1] + parts[2] + ClickURL(baseURL, trackingToken, href) + parts[4]
	})
}

func skipRewrite(href string) bool {
	if href == "" {
		return true
	}
	lower := strings.ToLower(href)
	switch {
	case strings.HasPrefix(lower, "mailto:"),
		strings.HasPrefix(lower, "tel:"),
		strings.HasPrefix(lower, "javascript:"),
		strings.HasPrefix(href, "#"):
		return true
	}
	return strings.Contains(href, "/track/") || strings.Contains(href, "/unsubscribe/")
}

// ClickURL builds the click-tracking redirect URL carrying the original
// target URL-encoded as a query parameter.
func ClickURL(baseURL, trackingToken, target string) string {
	return baseURL + "/track/click/" + trackingToken + "?url=" + url.QueryEscape(target)
}

// OpenURL builds the open-tracking pixel URL.
func OpenURL(baseURL, trackingToken string) string {
	return baseURL + "/track/open/" + trackingToken
}

// UnsubscribeURL builds the unsubscribe URL.
func UnsubscribeURL(baseURL, trackingToken string) string {
	return baseURL + "/unsubscribe/" + trackingToken
}
