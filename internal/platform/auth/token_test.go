package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ogurasousui/nearest-leader/internal/platform/config"
	"golang.org/x/oauth2"
)

func TestNewTokenSource_ClientCredentials(t *testing.T) {
	t.Parallel()

	var gotScope, gotGrant, gotClient string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		gotScope = r.PostForm.Get("scope")
		gotGrant = r.PostForm.Get("grant_type")
		gotClient = r.PostForm.Get("client_id")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"system-token","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(server.Close)

	src := NewTokenSource(context.Background(), config.PDLConfig{
		TokenURL:     server.URL,
		ClientID:     "nearest-leader",
		ClientSecret: "secret",
		Timeout:      time.Second,
	}, "api://pdl-api/.default")

	token, err := src.Token()
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if token.AccessToken != "system-token" {
		t.Fatalf("unexpected access token %q", token.AccessToken)
	}
	if gotGrant != "client_credentials" || gotScope != "api://pdl-api/.default" || gotClient != "nearest-leader" {
		t.Fatalf("unexpected token request: grant=%q scope=%q client=%q", gotGrant, gotScope, gotClient)
	}
}

func TestNewHTTPClient_SetsBearer(t *testing.T) {
	t.Parallel()

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	t.Cleanup(server.Close)

	client := NewHTTPClient(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "abc"}), time.Second)
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()

	if gotAuth != "Bearer abc" {
		t.Fatalf("unexpected Authorization header %q", gotAuth)
	}
}
