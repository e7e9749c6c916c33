package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/myhibachi/hibachi-backend/pkg/errors"
)

const responseBodyReadLimit int64 = 1024

// APITransport delivers through a SendGrid-style templated mail API: the
// provider renders the template server-side from the supplied data.
type APITransport struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// APITransportParams carries APITransport configuration.
type APITransportParams struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewAPITransport builds the templated mail API transport.
func NewAPITransport(params APITransportParams) (*APITransport, error) {
	if strings.TrimSpace(params.APIKey) == "" {
		return nil, fmt.Errorf("email api key is required")
	}
	baseURL := strings.TrimRight(params.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.sendgrid.com/v3"
	}
	httpClient := params.HTTPClient
	if httpClient == nil {
		timeout := params.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &APITransport{httpClient: httpClient, baseURL: baseURL, apiKey: params.APIKey}, nil
}

type apiPersonalization struct {
	To           []apiAddress   `json:"to"`
	TemplateData map[string]any `json:"dynamic_template_data,omitempty"`
}

type apiAddress struct {
	Email string `json:"email"`
}

type apiSendRequest struct {
	From             apiAddress           `json:"from"`
	ReplyTo          *apiAddress          `json:"reply_to,omitempty"`
	Subject          string               `json:"subject"`
	TemplateID       string               `json:"template_id,omitempty"`
	Personalizations []apiPersonalization `json:"personalizations"`
}

// Send implements Transport.
func (t *APITransport) Send(ctx context.Context, msg Message) error {
	if t == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "email api transport not configured")
	}

	request := apiSendRequest{
		From:       apiAddress{Email: msg.From},
		Subject:    msg.Subject,
		TemplateID: msg.Template,
		Personalizations: []apiPersonalization{{
			To:           []apiAddress{{Email: msg.To}},
			TemplateData: msg.Data,
		}},
	}
	if msg.ReplyTo != "" {
		request.ReplyTo = &apiAddress{Email: msg.ReplyTo}
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal email request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/mail/send", bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build email request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute email request")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		msgBody, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.New(pkgerrors.CodeNonRetryable, fmt.Sprintf("email provider rejected message: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msgBody))))
	default:
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("email send failed: status %d", resp.StatusCode))
	}
}
