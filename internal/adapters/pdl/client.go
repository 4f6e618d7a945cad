// Package pdl は人物登録簿 (PDL) の GraphQL API を使った person.NameResolver の実装です。
package pdl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ogurasousui/nearest-leader/internal/core/person"
	"go.uber.org/zap"
)

const (
	temaHeader   = "TEMA"
	tema         = "SYM"
	callIDHeader = "Nav-Call-Id"

	maxResponseSize = 10 * 1024 * 1024
)

const hentPersonBolkQuery = `query($identer: [ID!]!) {
  hentPersonBolk(identer: $identer) {
    ident
    person {
      navn(historikk: false) {
        fornavn
        mellomnavn
        etternavn
      }
    }
    code
  }
}`

// ErrUnexpectedStatus は PDL が 2xx 以外を返したことを表します。
var ErrUnexpectedStatus = errors.New("pdl: unexpected status")

// ErrResponseTooLarge は応答本文が上限を超えたことを表します。
var ErrResponseTooLarge = errors.New("pdl: response body too large")

// Client は PDL の GraphQL クライアントです。
// httpClient はシステムトークンを付与するものを渡します。
type Client struct {
	url        string
	httpClient *http.Client
	maxBody    int64
	logger     *zap.Logger
}

// NewClient は Client を生成します。
func NewClient(url string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{url: url, httpClient: httpClient, maxBody: maxResponseSize, logger: logger}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data struct {
		HentPersonBolk []personBolk `json:"hentPersonBolk"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type personBolk struct {
	Ident  string `json:"ident"`
	Code   string `json:"code"`
	Person *struct {
		Navn []struct {
			Fornavn    string  `json:"fornavn"`
			Mellomnavn *string `json:"mellomnavn"`
			Etternavn  string  `json:"etternavn"`
		} `json:"navn"`
	} `json:"person"`
}

// ResolveNames は ids の表示名を1回の問い合わせで解決します。
// 見つからなかった識別番号は結果に含まれません。
func (c *Client) ResolveNames(ctx context.Context, ids []string, correlationID string) (map[string]string, error) {
	ids = person.DistinctIDs(ids)
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	body, err := json.Marshal(graphQLRequest{
		Query:     hentPersonBolkQuery,
		Variables: map[string]any{"identer": ids},
	})
	if err != nil {
		return nil, fmt.Errorf("pdl: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("pdl: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(temaHeader, tema)
	if correlationID != "" {
		req.Header.Set(callIDHeader, correlationID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pdl: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err = readLimited(resp, c.maxBody)
	if err != nil {
		return nil, err
	}

	var decoded graphQLResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("pdl: decode response: %w", err)
	}

	if len(decoded.Errors) > 0 {
		messages := make([]string, 0, len(decoded.Errors))
		for _, e := range decoded.Errors {
			messages = append(messages, e.Message)
		}
		if decoded.Data.HentPersonBolk == nil {
			return nil, fmt.Errorf("pdl: graphql errors: %s", strings.Join(messages, "; "))
		}
		c.logger.Warn("pdl returned partial errors", zap.String("correlation_id", correlationID), zap.Strings("errors", messages))
	}

	names := make(map[string]string, len(decoded.Data.HentPersonBolk))
	for _, p := range decoded.Data.HentPersonBolk {
		if p.Person == nil || len(p.Person.Navn) == 0 {
			c.logger.Debug("pdl person without name", zap.String("correlation_id", correlationID), zap.String("code", p.Code))
			continue
		}
		navn := p.Person.Navn[0]
		name := person.Name{First: navn.Fornavn, Last: navn.Etternavn}
		if navn.Mellomnavn != nil {
			name.Middle = *navn.Mellomnavn
		}
		if formatted := name.Formatted(); formatted != "" {
			names[p.Ident] = formatted
		}
	}
	return names, nil
}

func readLimited(resp *http.Response, limit int64) ([]byte, error) {
	if resp.ContentLength > limit {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrResponseTooLarge, resp.ContentLength, limit)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("pdl: read response: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, limit)
	}
	return body, nil
}
