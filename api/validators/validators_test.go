package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/tillq/pkg/errors"
)

type sampleRequest struct {
	Action   string `json:"action" validate:"required,oneof=create update delete"`
	Resource string `json:"resource" validate:"required,max=8"`
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"upsert","resource":"orders"}`))
	var dest sampleRequest
	err := DecodeJSONBody(r, &dest)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok || details["action"] != "must be one of: create update delete" {
		t.Fatalf("unexpected details %#v", typed.Details())
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"create","resource":"orders","extra":1}`))
	var dest sampleRequest
	if err := DecodeJSONBody(r, &dest); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyAccepts(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"create","resource":"orders"}`))
	var dest sampleRequest
	if err := DecodeJSONBody(r, &dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dest.Resource != "orders" {
		t.Fatalf("unexpected resource %q", dest.Resource)
	}
}

func TestParseQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=30", nil)
	got, err := ParseQueryInt(r, "limit", 10, 1, 50)
	if err != nil || got != 30 {
		t.Fatalf("expected 30, got %d (%v)", got, err)
	}
	r = httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	if _, err := ParseQueryInt(r, "limit", 10, 1, 50); err == nil {
		t.Fatal("expected out of range error")
	}
}
