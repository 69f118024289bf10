package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestToMinorUnits(t *testing.T) {
	cases := map[string]int64{
		"3.00":   300,
		"2.5":    250,
		"4.995":  500,
		"0.01":   1,
		"12.344": 1234,
	}
	for in, want := range cases {
		if got := ToMinorUnits(decimal.RequireFromString(in)); got != want {
			t.Fatalf("ToMinorUnits(%s) = %d, want %d", in, got, want)
		}
	}
}

func TestFromMinorUnits(t *testing.T) {
	if got := FromMinorUnits(1250); !got.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("expected 12.50, got %s", got)
	}
}
