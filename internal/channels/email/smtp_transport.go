package email

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"

	pkgerrors "github.com/myhibachi/hibachi-backend/pkg/errors"
)

// SMTPTransport is the fallback for environments without a mail API key.
// Templates are not rendered; the data map is flattened into a plain-text
// body.
type SMTPTransport struct {
	host     string
	port     int
	username string
	password string
	sendMail func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// SMTPTransportParams carries SMTPTransport configuration.
type SMTPTransportParams struct {
	Host     string
	Port     int
	Username string
	Password string
}

// NewSMTPTransport builds the SMTP transport.
func NewSMTPTransport(params SMTPTransportParams) (*SMTPTransport, error) {
	if strings.TrimSpace(params.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	port := params.Port
	if port <= 0 {
		port = 587
	}
	return &SMTPTransport{
		host:     params.Host,
		port:     port,
		username: params.Username,
		password: params.Password,
		sendMail: smtp.SendMail,
	}, nil
}

// Send implements Transport. SendMail blocks without honoring the context, so
// the call runs in a goroutine and the result races the deadline.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if t == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "smtp transport not configured")
	}

	var auth smtp.Auth
	if t.username != "" {
		auth = smtp.PlainAuth("", t.username, t.password, t.host)
	}

	addr := fmt.Sprintf("%s:%d", t.host, t.port)
	raw := buildRawMessage(msg)

	done := make(chan error, 1)
	go func() {
		done <- t.sendMail(addr, auth, msg.From, []string{msg.To}, raw)
	}()

	select {
	case err := <-done:
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "smtp send failed")
		}
		return nil
	case <-ctx.Done():
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, ctx.Err(), "smtp send timed out")
	}
}

func buildRawMessage(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	if msg.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", msg.ReplyTo)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")

	if body, ok := msg.Data["body"].(string); ok && body != "" {
		b.WriteString(body)
		b.WriteString("\r\n")
	}

	keys := make([]string, 0, len(msg.Data))
	for k := range msg.Data {
		if k == "body" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\r\n", k, msg.Data[k])
	}
	return []byte(b.String())
}
