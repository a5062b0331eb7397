package validation

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type sampleRequest struct {
	Email     string             `validate:"required,email"`
	UsedPoint int64              `validate:"gte=0"`
	Lines     []domain.OrderLine `validate:"min=1,dive"`
}

func TestStruct_Valid(t *testing.T) {
	req := sampleRequest{
		Email: "member@example.com",
		Lines: []domain.OrderLine{{ItemID: 1, Count: 1}},
	}
	if err := Struct(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStruct_FieldErrors(t *testing.T) {
	cases := []struct {
		name  string
		req   sampleRequest
		field string
	}{
		{
			name:  "bad email",
			req:   sampleRequest{Email: "nope", Lines: []domain.OrderLine{{ItemID: 1, Count: 1}}},
			field: "email",
		},
		{
			name:  "negative points",
			req:   sampleRequest{Email: "a@b.io", UsedPoint: -1, Lines: []domain.OrderLine{{ItemID: 1, Count: 1}}},
			field: "used_point",
		},
		{
			name:  "empty lines",
			req:   sampleRequest{Email: "a@b.io"},
			field: "lines",
		},
		{
			name:  "zero count in line",
			req:   sampleRequest{Email: "a@b.io", Lines: []domain.OrderLine{{ItemID: 1, Count: 0}}},
			field: "lines[0].count",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Struct(tc.req)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatal("expected ErrValidation sentinel")
			}
			if verr.Field != tc.field {
				t.Fatalf("field = %q, want %q", verr.Field, tc.field)
			}
			if verr.Reason == "" {
				t.Fatal("reason must not be empty")
			}
		})
	}
}

func TestVar(t *testing.T) {
	if err := Var("email", "member@example.com", "required,email"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := Var("email", "", "required,email")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "email" || verr.Reason != "is required" {
		t.Fatalf("unexpected error payload: %+v", verr)
	}
}

type convertSample struct {
	CartItemIDs []int64 `validate:"unique"`
}

func TestStruct_AcronymFieldName(t *testing.T) {
	req := convertSample{CartItemIDs: []int64{1, 1}}

	var verr *domain.ValidationError
	if !errors.As(Struct(req), &verr) {
		t.Fatal("expected ValidationError")
	}
	if verr.Field != "cart_item_ids" {
		t.Fatalf("field = %q, want cart_item_ids", verr.Field)
	}
}
