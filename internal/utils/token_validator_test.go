package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		want   bool
	}{
		{name: "disabled", token: "", header: "", want: true},
		{name: "valid", token: "s3cret", header: "Bearer s3cret", want: true},
		{name: "wrong token", token: "s3cret", header: "Bearer nope", want: false},
		{name: "prefix of token", token: "s3cret", header: "Bearer s3c", want: false},
		{name: "missing header", token: "s3cret", header: "", want: false},
		{name: "wrong scheme", token: "s3cret", header: "Basic s3cret", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/migrations/v1/apply", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := NewTokenValidator(tt.token).ValidateToken(req); got != tt.want {
				t.Errorf("ValidateToken() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTokenMiddleware(t *testing.T) {
	handler := NewTokenValidator("s3cret").Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rr.Code)
	}
}
