package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const postmarkBaseURL = "https://api.postmarkapp.com"

// PostmarkSender implements the Sender interface using the Postmark API.
type PostmarkSender struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
}

type postmarkEmail struct {
	From        string           `json:"From"`
	To          string           `json:"To"`
	Subject     string           `json:"Subject"`
	HtmlBody    string           `json:"HtmlBody,omitempty"`
	TextBody    string           `json:"TextBody,omitempty"`
	Headers     []postmarkHeader `json:"Headers,omitempty"`
	Attachments []postmarkAttach `json:"Attachments,omitempty"`
}

type postmarkHeader struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type postmarkAttach struct {
	Name        string `json:"Name"`
	Content     string `json:"Content"`
	ContentType string `json:"ContentType"`
}

type postmarkResponse struct {
	To        string `json:"To"`
	MessageID string `json:"MessageID"`
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

// PostmarkOption customizes a PostmarkSender.
type PostmarkOption func(*PostmarkSender)

// WithPostmarkBaseURL points the sender at another API root (tests).
func WithPostmarkBaseURL(u string) PostmarkOption {
	return func(p *PostmarkSender) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithPostmarkHTTPClient replaces the default HTTP client.
func WithPostmarkHTTPClient(c *http.Client) PostmarkOption {
	return func(p *PostmarkSender) { p.client = c }
}

// NewPostmarkSender creates a new Postmark email sender.
func NewPostmarkSender(apiKey, from string, opts ...PostmarkOption) *PostmarkSender {
	p := &PostmarkSender{
		apiKey:  apiKey,
		from:    from,
		baseURL: postmarkBaseURL,
		client:  &http.Client{Timeout: DefaultSMTPTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Send sends an email via Postmark.
func (p *PostmarkSender) Send(ctx context.Context, email *Email) (string, error) {
	if p.apiKey == "" {
		return "", ErrNotConfigured
	}

	from := email.From
	if from == "" {
		from = p.from
	}
	payload := postmarkEmail{
		From:     from,
		To:       strings.Join(email.To, ","),
		Subject:  email.Subject,
		HtmlBody: email.HTMLBody,
		TextBody: email.TextBody,
	}

	if len(email.Headers) > 0 {
		headers := make([]postmarkHeader, 0, len(email.Headers))
		for name, value := range email.Headers {
			headers = append(headers, postmarkHeader{Name: name, Value: value})
		}
		payload.Headers = headers
	}

	if len(email.Attachments) > 0 {
		attachments := make([]postmarkAttach, len(email.Attachments))
		for i, att := range email.Attachments {
			attachments[i] = postmarkAttach{
				Name:        att.Filename,
				Content:     base64.StdEncoding.EncodeToString(att.Content),
				ContentType: att.ContentType,
			}
		}
		payload.Attachments = attachments
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal email payload: %w", err)
	}

	body, status, err := p.do(ctx, http.MethodPost, "/email", jsonData)
	if err != nil {
		return "", err
	}

	var result postmarkResponse
	if err := json.Unmarshal(body, &result); err != nil && status == http.StatusOK {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if status != http.StatusOK || result.ErrorCode != 0 {
		msg := result.Message
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return "", &TransportError{
			Provider:   "postmark",
			StatusCode: status,
			Code:       result.ErrorCode,
			Message:    msg,
			Response:   string(body),
		}
	}

	return result.MessageID, nil
}

// Verify calls the server endpoint, which requires a valid server token.
func (p *PostmarkSender) Verify(ctx context.Context) error {
	if p.apiKey == "" {
		return ErrNotConfigured
	}

	body, status, err := p.do(ctx, http.MethodGet, "/server", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		var result postmarkResponse
		_ = json.Unmarshal(body, &result)
		return &TransportError{
			Provider:   "postmark",
			StatusCode: status,
			Code:       result.ErrorCode,
			Message:    result.Message,
			Response:   string(body),
		}
	}
	return nil
}

func (p *PostmarkSender) do(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Postmark-Server-Token", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}
