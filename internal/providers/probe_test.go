package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestProber(t *testing.T, handler http.HandlerFunc) *Prober {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := NewProber(5 * time.Second)
	p.endpoints = map[string]string{"groq": srv.URL}
	return p
}

func TestProbeSuccess(t *testing.T) {
	var gotAuth string
	p := newTestProber(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"data":[]}`))
	})

	res := p.Probe(context.Background(), "groq", "sk-live")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Status() != "success" {
		t.Fatalf("status = %q, want success", res.Status())
	}
	if res.Message != "Working!" {
		t.Fatalf("message = %q", res.Message)
	}
	if gotAuth != "Bearer sk-live" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
}

func TestProbeInvalidKey(t *testing.T) {
	p := newTestProber(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	res := p.Probe(context.Background(), "groq", "bad")
	if res.Success || res.Skipped {
		t.Fatalf("expected failure, got %+v", res)
	}
	if res.Message != "Invalid API key" {
		t.Fatalf("message = %q", res.Message)
	}
	if res.Status() != "failed" {
		t.Fatalf("status = %q, want failed", res.Status())
	}
}

func TestProbeServerError(t *testing.T) {
	p := newTestProber(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	res := p.Probe(context.Background(), "groq", "sk-live")
	if res.Success {
		t.Fatalf("expected failure, got %+v", res)
	}
	if res.Message != "HTTP 502" {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestProbeUnknownProvider(t *testing.T) {
	p := NewProber(time.Second)

	res := p.Probe(context.Background(), "some_custom_api", "whatever")
	if !res.Skipped {
		t.Fatalf("expected skipped result, got %+v", res)
	}
	if res.Status() != "unknown" {
		t.Fatalf("status = %q, want unknown", res.Status())
	}
}

func TestProbeNameNormalized(t *testing.T) {
	p := newTestProber(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	res := p.Probe(context.Background(), "  GROQ ", "sk-live")
	if !res.Success {
		t.Fatalf("expected provider name to be normalized, got %+v", res)
	}
}
