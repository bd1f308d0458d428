package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyError(t *testing.T) {
	var syntaxErr error
	if err := json.Unmarshal([]byte("{"), &struct{}{}); err != nil {
		syntaxErr = err
	}

	cases := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"nil", nil, false, ""},
		{"json", fmt.Errorf("decode: %w", syntaxErr), false, "json_decode_error"},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"no rows", pgx.ErrNoRows, false, "not_found"},
		{"unique", &pgconn.PgError{Code: "23505"}, false, "duplicate_key"},
		{"fk", &pgconn.PgError{Code: "23503"}, false, "constraint_violation"},
		{"serialization", &pgconn.PgError{Code: "40001"}, true, "tx_conflict"},
		{"refused", errors.New("dial tcp: connection refused"), true, "db_connection_error"},
		{"other", errors.New("boom"), false, "unknown_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			retryable, errType := ClassifyError(tc.err)
			if retryable != tc.retryable || errType != tc.errType {
				t.Fatalf("ClassifyError()=(%v,%q), want (%v,%q)", retryable, errType, tc.retryable, tc.errType)
			}
		})
	}
}

func TestJWT_RoundTrip(t *testing.T) {
	in := Claims{UserID: uuid.New(), OrgID: uuid.New(), Role: "admin"}
	token, err := GenerateJWT(in, "secret", time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT() err=%v", err)
	}

	out, err := ParseJWT(token, "secret")
	if err != nil {
		t.Fatalf("ParseJWT() err=%v, want nil", err)
	}
	if out != in {
		t.Fatalf("ParseJWT()=%+v, want %+v", out, in)
	}

	if _, err := ParseJWT(token, "other"); err == nil {
		t.Fatalf("ParseJWT(wrong secret) err=nil, want error")
	}
}

func TestJWT_Expired(t *testing.T) {
	token, _ := GenerateJWT(Claims{UserID: uuid.New(), OrgID: uuid.New()}, "secret", -time.Minute)
	if _, err := ParseJWT(token, "secret"); err == nil {
		t.Fatalf("ParseJWT(expired) err=nil, want error")
	}
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	if got := ExtractToken(r); got != "" {
		t.Fatalf("ExtractToken(no header)=%q, want empty", got)
	}
	r.Header.Set("Authorization", "Bearer abc.def")
	if got := ExtractToken(r); got != "abc.def" {
		t.Fatalf("ExtractToken()=%q, want abc.def", got)
	}
	r.Header.Set("Authorization", "Basic xyz")
	if got := ExtractToken(r); got != "" {
		t.Fatalf("ExtractToken(basic)=%q, want empty", got)
	}
}
