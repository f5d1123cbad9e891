package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"
	log "github.com/sirupsen/logrus"

	"gsw-platform/internal/speech"
)

// Sender delivers generated drafts to the customer.
type Sender interface {
	SendDrafts(ctx context.Context, to, reference string, drafts []speech.Draft) error
}

// SMTPMailer sends draft emails over plain SMTP.
type SMTPMailer struct {
	host string
	port string
	user string
	pass string
	from string
}

func NewSMTPMailer(host, port, user, pass, from string) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, user: user, pass: pass, from: from}
}

// SendDrafts emails all drafts in a single message, retrying up to three
// times with exponential backoff before giving up.
func (m *SMTPMailer) SendDrafts(ctx context.Context, to, reference string, drafts []speech.Draft) error {
	addr := fmt.Sprintf("%s:%s", m.host, m.port)
	auth := smtp.PlainAuth("", m.user, m.pass, m.host)

	e := email.NewEmail()
	e.From = m.from
	e.To = []string{to}
	e.Subject = fmt.Sprintf("Your graduation speech drafts (%s)", reference)
	e.Text = []byte(buildBody(reference, drafts))

	maxAttempts := 3
	delay := 1 * time.Second
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = e.Send(addr, auth)
		if err == nil {
			if attempt > 1 {
				log.WithFields(log.Fields{
					"attempt":   attempt,
					"email":     to,
					"reference": reference,
				}).Info("Draft email sent after retry")
			}
			return nil
		}
		if attempt < maxAttempts {
			log.WithFields(log.Fields{
				"attempt":   attempt,
				"error":     err,
				"email":     to,
				"reference": reference,
			}).Warn("Failed to send draft email, retrying...")
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("send draft email: %w", err)
}

func buildBody(reference string, drafts []speech.Draft) string {
	var b strings.Builder
	b.WriteString("Thank you for your purchase!\n\n")
	b.WriteString("Your order reference is " + reference + ". Keep it handy if you contact support.\n\n")
	b.WriteString("Here are your speech drafts:\n")
	for i, draft := range drafts {
		b.WriteString(fmt.Sprintf("\n--- Draft %d (%s) ---\n\n", i+1, draft.Tone))
		b.WriteString(draft.Body)
		b.WriteString("\n")
	}
	b.WriteString("\nGood luck up on that stage!\n")
	return b.String()
}
