package wsproto_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bedrockrelay/server/internal/wsproto"
)

func validUpgradeRequest() *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = "h"
	r.Header.Set("Upgrade", "websocket")
	r.Header.Set("Connection", "Upgrade")
	r.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	r.Header.Set("Sec-WebSocket-Version", "13")
	return r
}

func TestValidateUpgradeAccepts(t *testing.T) {
	t.Parallel()

	key, err := wsproto.ValidateUpgrade(validUpgradeRequest())
	if err != nil {
		t.Fatalf("ValidateUpgrade: %v", err)
	}
	if key != "dGhlIHNhbXBsZSBub25jZQ==" {
		t.Fatalf("key = %q", key)
	}
}

func TestValidateUpgradeRejects(t *testing.T) {
	t.Parallel()

	cases := map[string]func(r *http.Request){
		"wrong method":       func(r *http.Request) { r.Method = http.MethodPost },
		"missing host":       func(r *http.Request) { r.Host = "" },
		"missing upgrade":    func(r *http.Request) { r.Header.Del("Upgrade") },
		"wrong upgrade":      func(r *http.Request) { r.Header.Set("Upgrade", "h2c") },
		"missing connection": func(r *http.Request) { r.Header.Del("Connection") },
		"wrong connection":   func(r *http.Request) { r.Header.Set("Connection", "keep-alive") },
		"missing key":        func(r *http.Request) { r.Header.Del("Sec-WebSocket-Key") },
		"short key":          func(r *http.Request) { r.Header.Set("Sec-WebSocket-Key", "dG8=") },
		"not base64 key":     func(r *http.Request) { r.Header.Set("Sec-WebSocket-Key", "***not-base64***") },
	}

	for name, mutate := range cases {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			r := validUpgradeRequest()
			mutate(r)
			_, err := wsproto.ValidateUpgrade(r)
			if err == nil {
				t.Fatal("expected an error")
			}
			he, ok := err.(*wsproto.HandshakeError)
			if !ok {
				t.Fatalf("err = %v (%T), want *wsproto.HandshakeError", err, err)
			}
			if he.Status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", he.Status)
			}
		})
	}
}

func TestValidateUpgradeRejectsUnsupportedVersion(t *testing.T) {
	t.Parallel()

	r := validUpgradeRequest()
	r.Header.Set("Sec-WebSocket-Version", "8")
	_, err := wsproto.ValidateUpgrade(r)
	he, ok := err.(*wsproto.HandshakeError)
	if !ok {
		t.Fatalf("err = %v (%T), want *wsproto.HandshakeError", err, err)
	}
	if he.Status != http.StatusUpgradeRequired {
		t.Fatalf("status = %d, want 426", he.Status)
	}
}

// TestAcceptKeyRFCVector verifies the literal RFC 6455 §1.3 example.
func TestAcceptKeyRFCVector(t *testing.T) {
	t.Parallel()

	got := wsproto.AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("AcceptKey = %q, want %q", got, want)
	}
}
