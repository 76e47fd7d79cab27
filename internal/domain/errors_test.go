package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	stock := &InsufficientStockError{ProductID: "p-1", ProductName: "Kettle", Requested: 5, Available: 3}

	tests := []struct {
		name       string
		err        error
		notFound   bool
		conflict   bool
		denied     bool
		validation bool
	}{
		{name: "order not found", err: ErrOrderNotFound, notFound: true},
		{name: "wrapped cart not found", err: fmt.Errorf("load cart: %w", ErrCartNotFound), notFound: true},
		{name: "product not in cart", err: ErrProductNotInCart, notFound: true},
		{name: "insufficient stock", err: stock, conflict: true},
		{name: "wrapped insufficient stock", err: fmt.Errorf("reserve: %w", stock), conflict: true},
		{name: "empty cart", err: ErrEmptyCart, conflict: true},
		{name: "already delivered", err: ErrOrderAlreadyDelivered, conflict: true},
		{name: "cannot cancel", err: ErrOrderCannotBeCancelled, conflict: true},
		{name: "access denied", err: ErrAccessDenied, denied: true},
		{name: "shipping address", err: ErrShippingAddressRequired, validation: true},
		{name: "joined", err: errors.Join(ErrOrderNotFound, errors.New("context")), notFound: true},
		{name: "nil", err: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.notFound)
			}
			if got := IsConflict(tt.err); got != tt.conflict {
				t.Errorf("IsConflict() = %v, want %v", got, tt.conflict)
			}
			if got := IsAccessDenied(tt.err); got != tt.denied {
				t.Errorf("IsAccessDenied() = %v, want %v", got, tt.denied)
			}
			if got := IsValidation(tt.err); got != tt.validation {
				t.Errorf("IsValidation() = %v, want %v", got, tt.validation)
			}
		})
	}
}

func TestInsufficientStockError(t *testing.T) {
	err := error(&InsufficientStockError{ProductID: "p-1", ProductName: "Kettle", Requested: 5, Available: 3})

	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatal("expected errors.Is(err, ErrInsufficientStock)")
	}
	var typed *InsufficientStockError
	if !errors.As(err, &typed) || typed.ProductName != "Kettle" {
		t.Fatalf("errors.As failed: %v", err)
	}
	if err.Error() != `insufficient stock for product "Kettle": requested 5, available 3` {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}
