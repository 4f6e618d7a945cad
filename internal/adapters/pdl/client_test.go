package pdl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "system-token"}))
	return NewClient(server.URL, httpClient, nil)
}

func TestClient_ResolveNames(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer system-token" {
			t.Errorf("unexpected Authorization header %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("TEMA") != "SYM" {
			t.Errorf("unexpected TEMA header %q", r.Header.Get("TEMA"))
		}
		if r.Header.Get("Nav-Call-Id") != "call-1" {
			t.Errorf("unexpected call id %q", r.Header.Get("Nav-Call-Id"))
		}

		var req graphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		identer, _ := req.Variables["identer"].([]any)
		if len(identer) != 2 {
			t.Errorf("expected 2 distinct ids, got %v", req.Variables["identer"])
		}

		_, _ = w.Write([]byte(`{"data":{"hentPersonBolk":[
			{"ident":"1","code":"ok","person":{"navn":[{"fornavn":"OLA","mellomnavn":"per-ARNE","etternavn":"NORDMANN"}]}},
			{"ident":"2","code":"not_found","person":null}
		]}}`))
	})

	names, err := client.ResolveNames(context.Background(), []string{"1", "2", "1"}, "call-1")
	if err != nil {
		t.Fatalf("ResolveNames returned error: %v", err)
	}

	if got := names["1"]; got != "Ola Per-Arne Nordmann" {
		t.Fatalf("unexpected name %q", got)
	}
	if _, ok := names["2"]; ok {
		t.Fatalf("expected unresolved id to be absent")
	}
}

func TestClient_ResolveNames_EmptySkipsRequest(t *testing.T) {
	t.Parallel()

	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	names, err := client.ResolveNames(context.Background(), nil, "call-1")
	if err != nil {
		t.Fatalf("ResolveNames returned error: %v", err)
	}
	if len(names) != 0 || called {
		t.Fatalf("expected no request and empty result")
	}
}

func TestClient_ResolveNames_Errors(t *testing.T) {
	t.Parallel()

	t.Run("status", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := client.ResolveNames(context.Background(), []string{"1"}, "call-1")
		if !errors.Is(err, ErrUnexpectedStatus) {
			t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
		}
	})

	t.Run("graphql errors without data", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"errors":[{"message":"unauthorized"}],"data":{"hentPersonBolk":null}}`))
		})
		if _, err := client.ResolveNames(context.Background(), []string{"1"}, "call-1"); err == nil {
			t.Fatalf("expected error for graphql errors")
		}
	})
}

func TestClient_ResolveNames_ResponseTooLarge(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte(`{"data":{"hentPersonBolk":[{"ident":"1","code":"ok","person":{"navn":[{"fornavn":"OLA","etternavn":"NORDMANN"}]}}]}}`))
	})
	client.maxBody = 32

	_, err := client.ResolveNames(context.Background(), []string{"1"}, "call-1")
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("expected ErrResponseTooLarge, got %v", err)
	}
}
