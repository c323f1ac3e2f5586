package mailsender

import "gopkg.in/gomail.v2"

type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Send delivers a plain-text message. STARTTLS is attempted first; servers
// that only speak implicit SSL get one retry with SSL forced on.
func (m *Mailer) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)

	msg.SetBody("text/plain", body)

	dialer := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		dialer.SSL = true
		return dialer.DialAndSend(msg)
	}

	return nil
}
