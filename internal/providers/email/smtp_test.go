package email

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type line struct {
	Name     string
	Quantity int
	Price    string
}

func TestRenderOrderConfirmation(t *testing.T) {
	subject, body, err := Render(TemplateOrderConfirmation, map[string]any{
		"customer_name": "Ada",
		"order_id":      "42",
		"total":         "6.00",
		"items":         []line{{Name: "Chocolate Chip", Quantity: 2, Price: "3.00"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Your cookie order is confirmed", subject)
	assert.Contains(t, body, "Thanks for your order, Ada!")
	assert.Contains(t, body, "Chocolate Chip")
	assert.Contains(t, body, "Total: 6.00")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, _, err := Render("missing", nil)
	assert.Error(t, err)
}

func TestSMTPSendBuildsMessage(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 2525, From: "orders@cookies.example"})
	var gotAddr string
	var gotMsg []byte
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		assert.Nil(t, a)
		assert.Equal(t, []string{"ada@example.com"}, to)
		return nil
	}

	err := p.SendTemplate(context.Background(), []string{"ada@example.com"}, TemplateOrderConfirmation, map[string]any{
		"customer_name": "Ada",
		"subject":       "Order 42",
	})
	require.NoError(t, err)
	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Contains(t, string(gotMsg), "Subject: Order 42\r\n")
	assert.Contains(t, string(gotMsg), "To: ada@example.com\r\n")

	assert.ErrorIs(t, p.Send(context.Background(), nil, "x", "y"), ErrNoRecipients)
}
