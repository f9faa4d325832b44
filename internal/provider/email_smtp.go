package provider

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
)

// SMTPEmailAdapter delivers email through a plain SMTP relay. SMTP has no
// provider-side reference, so the generated Message-ID header doubles as the
// provider message id.
type SMTPEmailAdapter struct {
	Host     string
	Port     int
	Username string
	Password string
	FromName string
	FromAddr string
}

func (a *SMTPEmailAdapter) Name() string { return "smtp" }

func (a *SMTPEmailAdapter) Deliver(ctx context.Context, d Delivery) (string, error) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), a.Host)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", a.FromName, a.FromAddr)
	fmt.Fprintf(&b, "To: %s\r\n", d.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", d.Subject)
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	b.WriteString("MIME-Version: 1.0\r\n")

	if d.HTML != "" {
		boundary := uuid.NewString()
		fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, d.Text)
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, d.HTML)
		fmt.Fprintf(&b, "--%s--\r\n", boundary)
	} else {
		fmt.Fprintf(&b, "Content-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", d.Text)
	}

	addr := fmt.Sprintf("%s:%d", a.Host, a.Port)
	var auth smtp.Auth
	if a.Username != "" {
		auth = smtp.PlainAuth("", a.Username, a.Password, a.Host)
	}
	if err := smtp.SendMail(addr, auth, a.FromAddr, []string{d.To}, []byte(b.String())); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return messageID, nil
}

var _ Adapter = (*SMTPEmailAdapter)(nil)
