// Package notify sends buyer-facing email. Delivery is best effort and runs
// off the request path; a mail failure never fails a sale.
package notify

import (
	"bytes"
	"fmt"
	"io"

	gomail "gopkg.in/gomail.v2"

	"ticket-engine/internal/config"
	"ticket-engine/internal/logger"
	"ticket-engine/internal/models"
)

type Mailer struct {
	cfg config.SMTPConfig
	log *logger.Logger
}

func NewMailer(cfg config.SMTPConfig, log *logger.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log}
}

func (m *Mailer) enabled() bool {
	return m.cfg.Username != "" && m.cfg.Password != ""
}

func (m *Mailer) send(msg *gomail.Message) error {
	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	return dialer.DialAndSend(msg)
}

// SendOrderConfirmation tells the buyer which numbered ticket their confirmed
// order secured.
func (m *Mailer) SendOrderConfirmation(order *models.Order) {
	if !m.enabled() {
		m.log.Debug("EMAIL", "SMTP credentials not set, skipping order confirmation")
		return
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", order.BuyerEmail)
	msg.SetHeader("Subject", fmt.Sprintf("Order %s confirmed - ticket #%d", order.OrderID, order.TicketNumber))
	msg.SetBody("text/html", fmt.Sprintf(`
		<h2>Thank you, %s!</h2>
		<p>Your order <b>%s</b> is confirmed.</p>
		<p>Ticket number: <b>#%d</b></p>
		<p>Amount paid: %.2f</p>
	`, order.BuyerName, order.OrderID, order.TicketNumber, order.Amount))

	if err := m.send(msg); err != nil {
		m.log.Error("EMAIL", fmt.Sprintf("Failed to send confirmation for order %s: %v", order.OrderID, err))
		return
	}
	m.log.Info("EMAIL", fmt.Sprintf("Order confirmation sent to %s", order.BuyerEmail))
}

// SendSeatTicket delivers an admission ticket with its QR code embedded
// inline in the message body.
func (m *Mailer) SendSeatTicket(ticket *models.SeatTicket, qrPNG []byte) {
	if !m.enabled() {
		m.log.Debug("EMAIL", "SMTP credentials not set, skipping ticket email")
		return
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", ticket.BuyerEmail)
	msg.SetHeader("Subject", fmt.Sprintf("Your %s ticket", ticket.Tier))
	msg.SetBody("text/html", fmt.Sprintf(`
		<h2>Hello %s,</h2>
		<p>Here is your <b>%s</b> admission ticket.</p>
		<p>Ticket id: %s</p>
		<p>Present this QR code at the gate:</p>
		<img src="cid:ticket-qr.png" alt="ticket qr code"/>
	`, ticket.BuyerName, ticket.Tier, ticket.TicketID))

	msg.Embed("ticket-qr.png", gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(qrPNG))
		return err
	}))

	if err := m.send(msg); err != nil {
		m.log.Error("EMAIL", fmt.Sprintf("Failed to send ticket %s to %s: %v", ticket.TicketID, ticket.BuyerEmail, err))
		return
	}
	m.log.Info("EMAIL", fmt.Sprintf("Ticket %s emailed to %s", ticket.TicketID, ticket.BuyerEmail))
}
