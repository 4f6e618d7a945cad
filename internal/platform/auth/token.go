// Package auth はサービス間呼び出しに使うシステムトークンを提供します。
package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/ogurasousui/nearest-leader/internal/platform/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// NewTokenSource は client credentials フローで scope 用のトークンを取得する TokenSource を返します。
// トークンは期限切れまで再利用されます。
func NewTokenSource(ctx context.Context, cfg config.PDLConfig, scope string) oauth2.TokenSource {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if scope != "" {
		cc.Scopes = []string{scope}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: cfg.Timeout})
	return cc.TokenSource(ctx)
}

// NewHTTPClient は src のトークンを Authorization ヘッダーに付与する http.Client を返します。
func NewHTTPClient(src oauth2.TokenSource, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: src,
			Base:   http.DefaultTransport,
		},
	}
}
