package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// Validation happens before any SQL runs, so these need no database.
func TestSQLStoreValidation(t *testing.T) {
	store := NewSQLStore(nil, 10)
	ctx := context.Background()

	if _, err := store.CreateContent(ctx, 1, "", TypeChatMessage); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty body err = %v", err)
	}
	if _, err := store.CreateContent(ctx, 1, "  \t ", TypeChatMessage); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank body err = %v", err)
	}
	if _, err := store.CreateContent(ctx, 1, strings.Repeat("a", 11), TypeChatMessage); !errors.Is(err, ErrValidation) {
		t.Fatalf("oversized body err = %v", err)
	}
	if _, err := store.CreateContent(ctx, 1, "hi", ContentType("SMOKE_SIGNAL")); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown type err = %v", err)
	}
	if _, err := store.CreateDeliveryRecords(ctx, 1, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty recipients err = %v", err)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Field: "body", Reason: "must not be empty"}
	if got := err.Error(); got != "invalid body: must not be empty" {
		t.Fatalf("message = %q", got)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatal("ValidationError should match ErrValidation")
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{-1, 0, 0, 20},
		{0, 0, 0, 20},
		{2, 50, 2, 50},
		{0, 1000, 0, 100},
	}
	for _, tc := range cases {
		p, s := clampPage(tc.page, tc.size)
		if p != tc.wantPage || s != tc.wantSize {
			t.Fatalf("clampPage(%d,%d) = (%d,%d), want (%d,%d)", tc.page, tc.size, p, s, tc.wantPage, tc.wantSize)
		}
	}
}
