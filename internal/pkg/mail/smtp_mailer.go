package mail

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/nusapay/qrisgate/app/models"
	"github.com/nusapay/qrisgate/internal/pkg/env"
)

// SendMail sends a plain-text notification mail through the SMTP relay
// named by the SMTP_* environment. Auth is skipped when no credentials
// are configured, which covers local mailcatcher setups.
func SendMail(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%s", env.GetEnv("SMTP_HOST", ""), env.GetEnv("SMTP_PORT", ""))
	sender := env.GetEnv("SMTP_SENDER", "")
	if sender == "" {
		sender = "no-reply@localhost"
		log.Printf("mail: SMTP_SENDER not set, falling back to %s", sender)
	}

	var auth smtp.Auth
	if user := env.GetEnv("SMTP_USERNAME", ""); user != "" {
		if pass := env.GetEnv("SMTP_PASSWORD", ""); pass != "" {
			auth = smtp.PlainAuth("", user, pass, env.GetEnv("SMTP_HOST", ""))
		}
	}

	var msg []byte
	msg = append(msg, fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject)...)
	msg = append(msg, "MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n"...)
	msg = append(msg, body...)

	if err := smtp.SendMail(addr, auth, sender, []string{to}, msg); err != nil {
		log.Printf("mail: send to %s failed: %v", to, err)
		return err
	}
	log.Printf("mail: sent to %s via %s", to, addr)
	return nil
}

// AlertNotifier mails newly raised operational alerts to the operator
// inbox. With no recipient configured it stays silent; the alert row is
// already persisted either way.
type AlertNotifier struct {
	recipient string
}

func NewAlertNotifier() *AlertNotifier {
	return &AlertNotifier{recipient: env.GetEnv("ALERT_MAIL_TO", "")}
}

func (n *AlertNotifier) NotifyAlert(alert *models.Alert) {
	if n.recipient == "" {
		return
	}
	subject := fmt.Sprintf("[qrisgate] alert: %s", alert.Type)
	body := alert.Message
	if alert.MerchantID != nil {
		body = fmt.Sprintf("merchant: %s\n\n%s", *alert.MerchantID, alert.Message)
	}
	_ = SendMail(n.recipient, subject, body)
}
