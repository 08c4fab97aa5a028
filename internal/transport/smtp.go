package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"sort"
	"strings"
	"time"

	appErrors "github.com/leadsmagics/crm-backend/internal/errors"
)

// SMTPConfig is the explicit transport configuration. Certificate
// verification is a per-transport setting, never a process-wide one.
type SMTPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	VerifyCertificates bool
	Timeout            time.Duration
}

// SMTPTransport delivers envelopes over one SMTP session. The session
// is opened lazily and reused across sends within one batch; it must
// not be shared across concurrent batches — each batch owns its own
// transport and closes it.
type SMTPTransport struct {
	cfg    SMTPConfig
	conn   net.Conn
	client *smtp.Client
}

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPTransport{cfg: cfg}
}

func (t *SMTPTransport) Send(ctx context.Context, env *Envelope) error {
	if len(env.To) == 0 {
		return appErrors.NewPermanentDelivery(errors.New("envelope has no recipients"))
	}

	if t.client == nil {
		if err := t.open(ctx); err != nil {
			return classify(err)
		}
	}

	deadline := time.Now().Add(t.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetDeadline(deadline); err != nil {
		t.reset()
		return appErrors.NewTransientDelivery(err)
	}

	if err := t.submit(env); err != nil {
		// A failed dialogue leaves the session in an unknown state.
		t.reset()
		return classify(err)
	}
	return nil
}

func (t *SMTPTransport) submit(env *Envelope) error {
	from := bareAddress(env.FromAddr)
	if err := t.client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range allRecipients(env) {
		if err := t.client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := t.client.Data()
	if err != nil {
		return err
	}
	msg, err := buildMessage(env)
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}

func (t *SMTPTransport) open(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: t.cfg.Timeout}
	addr := fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}

	if t.cfg.UseTLS {
		tlsCfg := &tls.Config{
			ServerName:         t.cfg.Host,
			InsecureSkipVerify: !t.cfg.VerifyCertificates,
		}
		if err := client.StartTLS(tlsCfg); err != nil {
			client.Close()
			return err
		}
	}

	if t.cfg.Username != "" {
		auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return err
		}
	}

	t.conn = conn
	t.client = client
	return nil
}

func (t *SMTPTransport) reset() {
	if t.client != nil {
		t.client.Close()
	}
	t.client = nil
	t.conn = nil
}

// Close quits the session. Safe to call when nothing was opened.
func (t *SMTPTransport) Close() error {
	if t.client == nil {
		return nil
	}
	err := t.client.Quit()
	t.client = nil
	t.conn = nil
	return err
}

// classify maps SMTP reply codes and network errors onto the delivery
// error taxonomy: 5xx replies are permanent, everything else (4xx,
// timeouts, connection errors) might succeed on retry.
func classify(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		if tpErr.Code >= 500 {
			return appErrors.NewPermanentDelivery(err)
		}
		return appErrors.NewTransientDelivery(err)
	}
	return appErrors.NewTransientDelivery(err)
}

func allRecipients(env *Envelope) []string {
	out := make([]string, 0, len(env.To)+len(env.CC)+len(env.BCC))
	out = append(out, env.To...)
	out = append(out, env.CC...)
	out = append(out, env.BCC...)
	return out
}

// bareAddress strips an optional display name from "Name <addr>".
func bareAddress(addr string) string {
	if i := strings.IndexByte(addr, '<'); i >= 0 {
		if j := strings.IndexByte(addr[i:], '>'); j > 0 {
			return addr[i+1 : i+j]
		}
	}
	return addr
}

// buildMessage renders the envelope as a multipart/alternative MIME
// message. BCC addresses go only on the SMTP dialogue, never into the
// headers.
func buildMessage(env *Envelope) ([]byte, error) {
	var buf bytes.Buffer

	writeHeader(&buf, "From", env.FromAddr)
	writeHeader(&buf, "To", strings.Join(env.To, ", "))
	if len(env.CC) > 0 {
		writeHeader(&buf, "Cc", strings.Join(env.CC, ", "))
	}
	if env.ReplyTo != "" {
		writeHeader(&buf, "Reply-To", env.ReplyTo)
	}
	writeHeader(&buf, "Subject", env.Subject)
	writeHeader(&buf, "MIME-Version", "1.0")

	keys := make([]string, 0, len(env.Headers))
	for k := range env.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeHeader(&buf, k, env.Headers[k])
	}

	mw := multipart.NewWriter(&buf)
	writeHeader(&buf, "Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	buf.WriteString("\r\n")

	if err := writePart(mw, "text/plain; charset=utf-8", env.Text); err != nil {
		return nil, err
	}
	if err := writePart(mw, "text/html; charset=utf-8", env.HTML); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func writePart(mw *multipart.Writer, contentType, body string) error {
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}
