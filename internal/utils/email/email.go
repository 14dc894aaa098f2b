package email

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/oindividum/bankcards-service/internal/config"
	"github.com/oindividum/bankcards-service/internal/models"
)

// Sender handles sending emails via SMTP to the bank operations mailbox
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   func(e *email.Email) error
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	s := &Sender{cfg: cfg, logger: logger}
	s.send = s.sendSMTP
	return s
}

func (s *Sender) sendSMTP(e *email.Email) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	return e.Send(addr, auth)
}

func (s *Sender) deliver(subject, body string) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{s.cfg.OpsEmail}
	e.Subject = subject
	e.Text = []byte(body + "\nBest regards,\nBank Service")

	if err := s.send(e); err != nil {
		s.logger.Errorf("Failed to send email %q to %s: %v", subject, s.cfg.OpsEmail, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", s.cfg.OpsEmail, subject)
	return nil
}

// SendBlockRequested tells operations that a card owner asked to block a card.
func (s *Sender) SendBlockRequested(username string, card models.CardView) error {
	body := fmt.Sprintf(
		"User %s requested a block of card %d (%s, holder %s).\n"+
			"Request time: %s\n"+
			"The card has been moved to status %s.\n",
		username, card.ID, card.MaskedNumber, card.HolderName,
		time.Now().Format("2006-01-02 15:04:05"), card.Status,
	)
	return s.deliver("Card Block Request", body)
}

// SendExpiryReport lists active cards found past their expiry date.
func (s *Sender) SendExpiryReport(day time.Time, cards []models.CardView, blocked bool) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d active card(s) expired before %s.\n\n", len(cards), day.Format(models.DateLayout))
	for _, c := range cards {
		fmt.Fprintf(&b, "  card %d  %s  user %d  expired %s\n", c.ID, c.MaskedNumber, c.UserID, c.ExpiryDate)
	}
	if blocked {
		b.WriteString("\nAll listed cards have been blocked.\n")
	} else {
		b.WriteString("\nAutomatic blocking is disabled; please review the listed cards.\n")
	}
	return s.deliver("Expired Cards Report", b.String())
}
