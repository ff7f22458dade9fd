// Package email provides email templates.
package email

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"text/template"
)

// OrderInfo contains all the information needed for order email templates
type OrderInfo struct {
	OrderNumber     string
	CustomerEmail   string
	StoreName       string
	StoreURL        string
	OrderDate       string
	DeliveryMethod  string
	ShippingAddress string
	Items           []OrderItem
	Subtotal        string
	Shipping        string
	Tax             string
	Total           string
	Carrier         string
	TrackingNumber  string
	TrackingURL     string
}

// OrderItem represents a single item in an order
type OrderItem struct {
	Name       string
	Quantity   int
	UnitPrice  string
	TotalPrice string
}

type emailTemplate struct {
	Subject string
	Text    string
}

var emailTemplates = map[string]emailTemplate{
	"order_confirmation": {
		Subject: "Order Confirmed - {{.OrderNumber}} - {{.StoreName}}",
		Text:    orderConfirmationText,
	},
	"order_shipped": {
		Subject: "Your Order Has Shipped - {{.OrderNumber}} - {{.StoreName}}",
		Text:    orderShippedText,
	},
	"order_delivered": {
		Subject: "Your Order Has Been Delivered - {{.OrderNumber}}",
		Text:    orderDeliveredText,
	},
}

// Renderer provides methods to render email templates
type Renderer struct {
	templates *template.Template
}

// NewRenderer creates a new email template renderer with built-in templates
func NewRenderer() (*Renderer, error) {
	tmpl := template.New("email")
	for key, t := range emailTemplates {
		if _, err := tmpl.New(key + "_subject").Parse(t.Subject); err != nil {
			return nil, fmt.Errorf("failed to parse subject template %s: %w", key, err)
		}
		if _, err := tmpl.New(key + "_text").Parse(t.Text); err != nil {
			return nil, fmt.Errorf("failed to parse text template %s: %w", key, err)
		}
	}

	return &Renderer{templates: tmpl}, nil
}

var sharedRenderer = sync.OnceValues(NewRenderer)

// Render renders an email template with the given data
func (r *Renderer) Render(_ context.Context, templateName string, data *OrderInfo) (*Email, error) {
	if data == nil {
		return nil, fmt.Errorf("order info is required")
	}
	if _, ok := emailTemplates[templateName]; !ok {
		return nil, fmt.Errorf("unknown email template: %s", templateName)
	}

	var subjectBuf, textBuf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&subjectBuf, templateName+"_subject", data); err != nil {
		return nil, fmt.Errorf("failed to render subject template: %w", err)
	}
	if err := r.templates.ExecuteTemplate(&textBuf, templateName+"_text", data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}

	return &Email{
		To:      data.CustomerEmail,
		Subject: subjectBuf.String(),
		Text:    textBuf.String(),
	}, nil
}

// SendOrderConfirmation sends an order confirmation email
func SendOrderConfirmation(ctx context.Context, p Provider, orderInfo *OrderInfo) error {
	return send(ctx, p, "order_confirmation", orderInfo)
}

// SendOrderShipped sends an order shipped email
func SendOrderShipped(ctx context.Context, p Provider, orderInfo *OrderInfo) error {
	return send(ctx, p, "order_shipped", orderInfo)
}

// SendOrderDelivered sends an order delivered email
func SendOrderDelivered(ctx context.Context, p Provider, orderInfo *OrderInfo) error {
	return send(ctx, p, "order_delivered", orderInfo)
}

func send(ctx context.Context, p Provider, templateName string, orderInfo *OrderInfo) error {
	if p == nil {
		return nil
	}

	renderer, err := sharedRenderer()
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}

	email, err := renderer.Render(ctx, templateName, orderInfo)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}
	if email.To == "" {
		return fmt.Errorf("recipient email is required")
	}

	return p.SendEmail(ctx, email)
}

const orderConfirmationText = `Thank you for your order!

Order Number: {{.OrderNumber}}
Order Date: {{.OrderDate}}

Items:
{{range .Items}}- {{.Name}} x{{.Quantity}} @ {{.UnitPrice}} = {{.TotalPrice}}
{{end}}
Subtotal: {{.Subtotal}}
Shipping: {{.Shipping}}
Estimated tax: {{.Tax}}
Total paid: {{.Total}}
{{if eq .DeliveryMethod "pickup"}}
Your order will be ready for pickup. We'll email you when it is ready.
{{else}}
Shipping to:
{{.ShippingAddress}}

We'll send you another email when your order ships.
{{end}}
Thank you for shopping with {{.StoreName}}!
{{.StoreURL}}
`

const orderShippedText = `Great news! Your order has shipped!

Order Number: {{.OrderNumber}}
{{if .TrackingNumber}}
{{with .Carrier}}Carrier: {{.}}
{{end}}Tracking Number: {{.TrackingNumber}}
{{with .TrackingURL}}Track your package: {{.}}
{{end}}{{end}}
Shipping Address:
{{.ShippingAddress}}

We'll let you know when your package is delivered!

Thank you for shopping with {{.StoreName}}!
{{.StoreURL}}
`

const orderDeliveredText = `Your order has been delivered!

Order Number: {{.OrderNumber}}
{{if .ShippingAddress}}
Your package should have arrived at:
{{.ShippingAddress}}
{{end}}
We hope you enjoy your new battery! If you have any questions, reply to this email.

Thank you for shopping with {{.StoreName}}!
{{.StoreURL}}
`
