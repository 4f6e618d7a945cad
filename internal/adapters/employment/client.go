// Package employment は雇用関係 API を使った deactivation.EmploymentGate の実装です。
package employment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ogurasousui/nearest-leader/internal/core/deactivation"
	"golang.org/x/oauth2"
)

const (
	personIdentHeader = "Nav-Personident"
	dateLayout        = "2006-01-02"
	arbeidsforholdRef = "/api/v1/arbeidstaker/arbeidsforhold"
	maxResponseSize   = 10 * 1024 * 1024
)

// ErrUnexpectedStatus は API が 2xx 以外を返したことを表します。
var ErrUnexpectedStatus = errors.New("employment: unexpected status")

// ErrResponseTooLarge は応答本文が上限を超えたことを表します。
var ErrResponseTooLarge = errors.New("employment: response body too large")

// Client は雇用関係 API のクライアントです。
type Client struct {
	baseURL    string
	httpClient *http.Client
	system     oauth2.TokenSource
	maxBody    int64
	now        func() time.Time
}

// NewClient は Client を生成します。
// system は上長起点の問い合わせで使うシステムトークンです。
func NewClient(baseURL string, httpClient *http.Client, system oauth2.TokenSource) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		system:     system,
		maxBody:    maxResponseSize,
		now:        time.Now,
	}
}

type arbeidsforhold struct {
	Arbeidsgiver struct {
		Organisasjonsnummer string `json:"organisasjonsnummer"`
	} `json:"arbeidsgiver"`
	Ansettelsesperiode struct {
		Periode struct {
			Fom string  `json:"fom"`
			Tom *string `json:"tom"`
		} `json:"periode"`
	} `json:"ansettelsesperiode"`
}

// GetEmployments は従業員の雇用関係を返します。
// employeeInitiated の場合は呼び出し元のトークンを転送し、そうでなければシステムトークンを使います。
func (c *Client) GetEmployments(ctx context.Context, employeeID, authToken string, employeeInitiated bool) ([]deactivation.Employment, error) {
	token, err := c.bearer(authToken, employeeInitiated)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+arbeidsforholdRef, nil)
	if err != nil {
		return nil, fmt.Errorf("employment: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(personIdentHeader, employeeID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("employment: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return []deactivation.Employment{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if resp.ContentLength > c.maxBody {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrResponseTooLarge, resp.ContentLength, c.maxBody)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("employment: read response: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.maxBody)
	}

	var decoded []arbeidsforhold
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("employment: decode response: %w", err)
	}

	today := c.now().UTC().Format(dateLayout)
	result := make([]deactivation.Employment, 0, len(decoded))
	for _, a := range decoded {
		tom := a.Ansettelsesperiode.Periode.Tom
		result = append(result, deactivation.Employment{
			OrgID: a.Arbeidsgiver.Organisasjonsnummer,
			// ISO 日付は文字列比較で順序が決まる
			Active: tom == nil || *tom == "" || *tom >= today,
		})
	}
	return result, nil
}

func (c *Client) bearer(authToken string, employeeInitiated bool) (string, error) {
	if employeeInitiated {
		token := strings.TrimSpace(strings.TrimPrefix(authToken, "Bearer "))
		if token == "" {
			return "", errors.New("employment: missing caller token")
		}
		return token, nil
	}
	if c.system == nil {
		return "", errors.New("employment: system token source not configured")
	}
	t, err := c.system.Token()
	if err != nil {
		return "", fmt.Errorf("employment: system token: %w", err)
	}
	return t.AccessToken, nil
}
