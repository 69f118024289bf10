// Package pdf renders printable order documents.
package pdf

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error)
}

type ReceiptData struct {
	StoreName     string
	StoreURL      string
	OrderNumber   string
	OrderDate     string
	Status        string
	PaymentRef    string
	CustomerName  string
	CustomerEmail string
	Items         []ReceiptItem
	Total         string
}

type ReceiptItem struct {
	Description string
	Qty         int
	UnitPrice   string
	Amount      string
}

type MarotoProvider struct{}

func New() Provider {
	return &MarotoProvider{}
}
