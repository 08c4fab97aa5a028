package personalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadsmagics/crm-backend/internal/model"
	"github.com/leadsmagics/crm-backend/internal/personalize"
)

func TestVarsBuiltins(t *testing.T) {
	contact := &model.Contact{
		Name:            "Ada Lovelace",
		Email:           "ada@example.com",
		JobRole:         "Engineer",
		Phone:           "555-0100",
		CompanyName:     "Analytical Engines",
		CompanyLocation: "London",
	}

	vars := personalize.Vars(contact, "tok-123", nil)

	assert.Equal(t, "Ada Lovelace", vars["name"])
	assert.Equal(t, "Ada", vars["first_name"])
	assert.Equal(t, "ada@example.com", vars["email"])
	assert.Equal(t, "Analytical Engines", vars["company"])
	assert.Equal(t, "London", vars["location"])
	assert.Equal(t, "tok-123", vars["tracking_id"])
}

func TestVarsFallbacks(t *testing.T) {
	vars := personalize.Vars(&model.Contact{}, "", nil)

	assert.Equal(t, personalize.FallbackName, vars["name"])
	assert.Equal(t, "Valued", vars["first_name"])
	_, ok := vars["tracking_id"]
	assert.False(t, ok, "tracking_id only present with a recipient context")
}

func TestVarsExtraOverridesBuiltin(t *testing.T) {
	contact := &model.Contact{Name: "Ada Lovelace"}
	vars := personalize.Vars(contact, "", map[string]string{"name": "Override", "offer": "10%"})

	assert.Equal(t, "Override", vars["name"])
	assert.Equal(t, "10%", vars["offer"])
}

func TestRenderSubstitutes(t *testing.T) {
	vars := map[string]string{"name": "Ada", "company": "AE"}
	out := personalize.Render("Hi {{name}} from {{company}}!", vars, nil)
	assert.Equal(t, "Hi Ada from AE!", out)
}

func TestRenderBareTokens(t *testing.T) {
	bare := map[string]string{"offer": "10% off"}
	out := personalize.Render("Deal: {offer} ends {deadline}", nil, bare)
	assert.Equal(t, "Deal: 10% off ends {deadline}", out)
}

func TestRenderUnknownTokenVerbatim(t *testing.T) {
	out := personalize.Render("Hello {{nonsense}}!", map[string]string{"name": "Ada"}, nil)
	assert.Equal(t, "Hello {{nonsense}}!", out)
}

func TestRenderSinglePass(t *testing.T) {
	// A substituted value containing another token must not be
	// expanded again.
	vars := map[string]string{
		"greeting": "dear {{name}}",
		"name":     "Ada",
	}
	out := personalize.Render("{{greeting}}", vars, nil)
	assert.Equal(t, "dear {{name}}", out)
}

func TestRenderMalformedBraces(t *testing.T) {
	vars := map[string]string{"name": "Ada"}
	assert.Equal(t, "{{name}", personalize.Render("{{name}", vars, nil))
	assert.Equal(t, "{ name }", personalize.Render("{ name }", vars, nil))
	assert.Equal(t, "}}{{", personalize.Render("}}{{", vars, nil))
}

func TestRewriteLinks(t *testing.T) {
	html := `<p><a href="https://example.com/offer">Offer</a></p>`
	out := personalize.RewriteLinks(html, "http://app.test", "tok-1")

	require.Contains(t, out, `href="http://app.test/track/click/tok-1?url=https%3A%2F%2Fexample.com%2Foffer"`)
	assert.Contains(t, out, ">Offer</a>")
}

func TestRewriteLinksIdempotent(t *testing.T) {
	html := `<a href="https://example.com">x</a> <a href='https://example.org/a?b=c'>y</a>`
	once := personalize.RewriteLinks(html, "http://app.test", "tok-1")
	twice := personalize.RewriteLinks(once, "http://app.test", "tok-1")
	assert.Equal(t, once, twice)
}

func TestRewriteLinksSkipsSpecialSchemes(t *testing.T) {
	html := `<a href="mailto:a@x.com">m</a>` +
		`<a href="tel:+123">t</a>` +
		`<a href="#section">f</a>` +
		`<a href="javascript:void(0)">j</a>` +
		`<a href="http://app.test/unsubscribe/tok-1">u</a>`
	out := personalize.RewriteLinks(html, "http://app.test", "tok-1")
	assert.Equal(t, html, out)
}

func TestTrackingURLs(t *testing.T) {
	assert.Equal(t, "http://a/track/open/t", personalize.OpenURL("http://a", "t"))
	assert.Equal(t, "http://a/unsubscribe/t", personalize.UnsubscribeURL("http://a", "t"))
	assert.Equal(t, "http://a/track/click/t?url=http%3A%2F%2Fb", personalize.ClickURL("http://a", "t", "http://b"))
}
