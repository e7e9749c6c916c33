package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/myhibachi/hibachi-backend/pkg/config"
	pkgerrors "github.com/myhibachi/hibachi-backend/pkg/errors"
)

const (
	responseBodyReadLimit int64 = 1024

	// Tokens are refreshed slightly early so an in-flight send never carries
	// a token that expires mid-request.
	tokenRefreshSkew = 30 * time.Second
)

// Gateway is the authenticated HTTP client for the SMS provider. Tokens are
// fetched lazily, cached until near expiry, and refreshed once on a 401.
type Gateway struct {
	httpClient *http.Client
	baseURL    string
	authURL    string
	accountID  string
	apiKey     string
	apiSecret  string
	from       string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Option configures optional gateway behavior.
type Option func(*Gateway)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// NewGateway builds the SMS gateway client from configuration.
func NewGateway(cfg config.SMSConfig, opts ...Option) (*Gateway, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("sms gateway configuration is incomplete")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	gateway := &Gateway{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authURL:    strings.TrimRight(cfg.AuthURL, "/"),
		accountID:  cfg.AccountID,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		from:       cfg.From,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(gateway)
		}
	}
	return gateway, nil
}

// SendMessage delivers one SMS. A stale-token 401 triggers a single refresh
// and retry; any further auth failure surfaces as a retryable error.
func (g *Gateway) SendMessage(ctx context.Context, to, body string) error {
	if g == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "sms gateway not configured")
	}
	if strings.TrimSpace(to) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "sms recipient is required")
	}
	if strings.TrimSpace(body) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "sms body is required")
	}

	status, err := g.send(ctx, to, body)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		g.invalidateToken()
		status, err = g.send(ctx, to, body)
		if err != nil {
			return err
		}
	}

	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return pkgerrors.New(pkgerrors.CodeNonRetryable, fmt.Sprintf("sms provider rejected message: status %d", status))
	default:
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("sms send failed: status %d", status))
	}
}

func (g *Gateway) send(ctx context.Context, to, body string) (int, error) {
	token, err := g.bearerToken(ctx)
	if err != nil {
		return 0, err
	}

	payload, err := json.Marshal(map[string]string{
		"account_id": g.accountID,
		"from":       g.from,
		"to":         to,
		"body":       body,
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal sms request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build sms request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute sms request")
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, responseBodyReadLimit))

	return resp.StatusCode, nil
}

// bearerToken returns the cached token or authenticates for a fresh one.
func (g *Gateway) bearerToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && time.Now().Before(g.tokenExpiry.Add(-tokenRefreshSkew)) {
		return g.token, nil
	}

	payload, err := json.Marshal(map[string]string{
		"api_key":    g.apiKey,
		"api_secret": g.apiSecret,
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal sms auth request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.authURL+"/token", bytes.NewReader(payload))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build sms auth request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute sms auth request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return "", pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("sms auth failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var authResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode sms auth response")
	}
	if authResp.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "sms auth response missing access token")
	}

	g.token = authResp.AccessToken
	g.tokenExpiry = tokenExpiry(authResp.AccessToken)
	return g.token, nil
}

func (g *Gateway) invalidateToken() {
	g.mu.Lock()
	g.token = ""
	g.tokenExpiry = time.Time{}
	g.mu.Unlock()
}

// tokenExpiry reads the exp claim without verifying the signature; the
// provider signed it and we only need the refresh deadline. Tokens without a
// readable expiry are treated as short-lived.
func tokenExpiry(token string) time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err == nil {
		if exp, expErr := parsed.Claims.GetExpirationTime(); expErr == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(time.Minute)
}
