package mailer

import (
	"context"
	"fmt"

	"voucher-service/config"
	"voucher-service/internal/util"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// VoucherEmail carries everything needed to deliver one claimed code
type VoucherEmail struct {
	To          string
	Name        string
	Code        string
	ProjectName string
	ProductName string
	Amount      int64
}

// SMTPMailer delivers voucher codes over SMTP
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	logger *zap.Logger
}

// NewSMTPMailer creates a mailer from SMTP config
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: util.GetLogger(),
	}
}

// SendVoucherCode sends the claimed code to the buyer. The send runs in a
// goroutine so the caller's context deadline bounds the blocking SMTP dial.
func (m *SMTPMailer) SendVoucherCode(ctx context.Context, email VoucherEmail) error {
	product := email.ProductName
	if product == "" {
		product = email.ProjectName
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", fmt.Sprintf("Your %s - Voucher Code", product))
	msg.SetBody("text/html", renderVoucherBody(email.Name, product, email.Code, email.Amount))

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		m.logger.Info("Voucher email sent", zap.String("to", email.To))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}

func renderVoucherBody(name, product, code string, amount int64) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1>Payment Successful!</h1>
  <p>Hi %s,</p>
  <p>Thank you for purchasing <strong>%s</strong>. Here is your voucher code:</p>
  <div style="border: 2px solid #002E59; border-radius: 8px; padding: 20px; margin: 25px 0;">
    <p style="font-size: 32px; font-weight: bold; font-family: monospace; letter-spacing: 2px;">%s</p>
  </div>
  <p>Amount paid: %.2f</p>
  <p>Keep this email safe. You will need the code to redeem your purchase.</p>
</body>
</html>`, name, product, code, float64(amount)/100)
}
