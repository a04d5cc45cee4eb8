// Package notify e-mails approvers when an order needs their attention.
package notify

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/go-mail/mail"
	"github.com/sirupsen/logrus"

	"github.com/mhrivnak/orderflow/pkg/config"
	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/metrics"
)

type dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// Email sends approval requests through an SMTP server.
type Email struct {
	dialer    dialer
	from      string
	portalURL string
	log       logrus.FieldLogger
}

// NewEmail builds an Email notifier from the smtp configuration section.
func NewEmail(cfg *config.Config, log logrus.FieldLogger) *Email {
	d := mail.NewDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password)
	return newEmail(d, cfg.SMTP.From, cfg.SMTP.PortalURL, log)
}

func newEmail(d dialer, from, portalURL string, log logrus.FieldLogger) *Email {
	return &Email{dialer: d, from: from, portalURL: strings.TrimSuffix(portalURL, "/"), log: log}
}

// NotifyApprovers asks approvers to review the order. Approvers without an e-mail address
// are skipped.
func (e *Email) NotifyApprovers(ctx context.Context, order *models.Order, approvers []models.User) error {
	var to []string
	for _, approver := range approvers {
		if approver.Email != "" {
			to = append(to, approver.Email)
		}
	}
	if len(to) == 0 {
		e.log.WithField("order", order.ID).Warn("No approver with an e-mail address to notify")
		return nil
	}

	body, err := e.body(order)
	if err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", fmt.Sprintf("Order %q is waiting for your approval", orderName(order)))
	m.SetBody("text/html", body)

	if err := e.dialer.DialAndSend(m); err != nil {
		metrics.RecordNotification("failed")
		return fmt.Errorf("failed to send approval request for order %s: %w", order.ID, err)
	}
	metrics.RecordNotification("sent")
	return nil
}

var bodyTemplate = template.Must(template.New("approval").Parse(
	`Hello,<br/>order "{{ .Name }}"` +
		`{{ with .Owner }} submitted by {{ . }}{{ end }}` +
		`{{ with .Group }} for group {{ . }}{{ end }}` +
		` needs your approval.<br/>Rate: {{ .Rate }}` +
		`{{ with .Link }}<br/><a href="{{ . }}">{{ . }}</a>{{ end }}`))

type bodyData struct {
	Name  string
	Owner string
	Group string
	Rate  float64
	Link  string
}

// body renders the html message. Values come from requestors and are escaped.
func (e *Email) body(order *models.Order) (string, error) {
	data := bodyData{Name: orderName(order), Rate: order.Rate}
	if order.Owner != nil {
		data.Owner = order.Owner.Username
	}
	if order.Group != nil {
		data.Group = order.Group.Name
	}
	if e.portalURL != "" {
		data.Link = fmt.Sprintf("%s/orders/%s", e.portalURL, order.ID)
	}

	var b strings.Builder
	if err := bodyTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render approval request for order %s: %w", order.ID, err)
	}
	return b.String(), nil
}

func orderName(order *models.Order) string {
	if order.Name != "" {
		return order.Name
	}
	return order.ID.String()
}
