package postgres

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewObservationRepository_NilPool(t *testing.T) {
	_, err := NewObservationRepository(nil, nil)
	if err == nil {
		t.Fatal("expected error when pool is nil, got nil")
	}
	expectedMsg := "database pool cannot be nil"
	if err.Error() != expectedMsg {
		t.Errorf("expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestOpenPool_RequiresURL(t *testing.T) {
	if _, err := OpenPool(context.Background(), DBConfig{}); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestDecimalNumericRoundTrip(t *testing.T) {
	for _, s := range []string{"0.00000001", "45678.9", "123456789012345678.12345678", "3"} {
		d := decimal.RequireFromString(s)
		if got := numericToDecimal(decimalToNumeric(d)); !got.Equal(d) {
			t.Errorf("round trip of %s gave %s", s, got)
		}
	}
}
