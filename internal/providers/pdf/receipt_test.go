package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReceipt(t *testing.T) {
	doc, err := New().GenerateReceipt(context.Background(), ReceiptData{
		StoreName:     "Cookie Jar",
		OrderNumber:   "1790000000000000001",
		OrderDate:     "2025-08-14",
		Status:        "paid",
		CustomerName:  "Ada Lovelace",
		CustomerEmail: "ada@example.com",
		Items: []ReceiptItem{
			{Description: "Chocolate Chip", Qty: 2, UnitPrice: "3.00", Amount: "6.00"},
		},
		Total: "6.00",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF")))
}

func TestGenerateReceiptRequiresItems(t *testing.T) {
	_, err := New().GenerateReceipt(context.Background(), ReceiptData{OrderNumber: "1"})
	assert.ErrorIs(t, err, ErrEmptyReceipt)
}
