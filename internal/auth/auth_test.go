package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	s := NewSigner("test-secret")
	tok, err := s.Issue(Identity{UserID: "cust-1", Role: RoleCustomer})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	id, err := s.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id.UserID != "cust-1" || id.Role != RoleCustomer || id.IsOperator() {
		t.Fatalf("identity = %+v", id)
	}

	if _, err := NewSigner("other-secret").Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: %v", err)
	}

	expired := &Signer{Secret: []byte("test-secret"), TTL: -time.Minute}
	old, _ := expired.Issue(Identity{UserID: "cust-1", Role: RoleCustomer})
	if _, err := s.Parse(old); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}

	if _, err := s.Issue(Identity{UserID: "x", Role: "admin"}); err == nil {
		t.Fatal("unknown role must not be issued")
	}
}

func TestMiddleware(t *testing.T) {
	s := NewSigner("test-secret")
	operator, _ := s.Issue(Identity{UserID: "op-1", Role: RoleOperator})
	customer, _ := s.Issue(Identity{UserID: "cust-1", Role: RoleCustomer})

	var seen Identity
	h := s.Middleware(RequireRole(RoleOperator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	cases := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized},
		{"basic scheme", "Basic " + operator, "", http.StatusUnauthorized},
		{"customer", "Bearer " + customer, "", http.StatusForbidden},
		{"operator header", "Bearer " + operator, "", http.StatusNoContent},
		{"operator query", "", "?token=" + operator, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/orders"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body)
			}
		})
	}
	if seen.UserID != "op-1" {
		t.Fatalf("identity in context = %+v", seen)
	}
}
