package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"whatsapp-hub/internal/config"
)

// APIError is a refusal from the Graph API, surfaced with the provider's
// response body verbatim.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream API error: status=%d body=%s", e.StatusCode, e.Body)
}

// Client talks to the WhatsApp Cloud API with the shared parent-account
// token. The phone number id varies per tenant and is supplied per call.
type Client struct {
	cfg  *config.Config
	http *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) baseURL() string {
	version := strings.TrimSpace(c.cfg.APIVersion)
	if version == "" {
		version = "v19.0"
	}
	return "https://graph.facebook.com/" + version
}

func (c *Client) sendRequest(ctx context.Context, method, url string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.WhatsAppToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return respBody, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// --- Message send ---

type templateMessage struct {
	MessagingProduct      string       `json:"messaging_product"`
	To                    string       `json:"to"`
	Type                  string       `json:"type"`
	Template              *templateObj `json:"template,omitempty"`
	BizOpaqueCallbackData string       `json:"biz_opaque_callback_data,omitempty"`
}

type templateObj struct {
	Name       string         `json:"name"`
	Language   languageObj    `json:"language"`
	Components []componentObj `json:"components,omitempty"`
}

type languageObj struct {
	Code string `json:"code"`
}

type componentObj struct {
	Type       string         `json:"type"`
	Parameters []parameterObj `json:"parameters"`
}

type parameterObj struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// TemplateSend describes one outbound template message.
type TemplateSend struct {
	PhoneNumberID  string
	To             string
	Name           string
	Language       string
	Parameters     []string
	IdempotencyKey string
}

// SendTemplate sends an approved template message through a tenant's phone
// number id and returns the upstream message id. The idempotency key rides
// in the opaque callback data so retries can be reconciled at-least-once.
func (c *Client) SendTemplate(ctx context.Context, send TemplateSend) (string, error) {
	msg := templateMessage{
		MessagingProduct: "whatsapp",
		To:               send.To,
		Type:             "template",
		Template: &templateObj{
			Name:     send.Name,
			Language: languageObj{Code: send.Language},
		},
		BizOpaqueCallbackData: send.IdempotencyKey,
	}
	if len(send.Parameters) > 0 {
		params := make([]parameterObj, 0, len(send.Parameters))
		for _, p := range send.Parameters {
			params = append(params, parameterObj{Type: "text", Text: p})
		}
		msg.Template.Components = []componentObj{{Type: "body", Parameters: params}}
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL(), send.PhoneNumberID)
	resp, err := c.sendRequest(ctx, http.MethodPost, url, msg)
	if err != nil {
		return "", err
	}

	var parsed sendResponse
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Messages) == 0 {
		return "", fmt.Errorf("send response carried no message id")
	}
	return parsed.Messages[0].ID, nil
}

// --- Template submission ---

type submitRequest struct {
	Name       string            `json:"name"`
	Language   string            `json:"language"`
	Category   string            `json:"category"`
	Components []submitComponent `json:"components"`
}

type submitComponent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SubmitTemplate hands a draft to the upstream reviewer against the
// parent account and returns the upstream-assigned template name.
func (c *Client) SubmitTemplate(ctx context.Context, name, language, category, body string) (string, error) {
	req := submitRequest{
		Name:       name,
		Language:   language,
		Category:   category,
		Components: []submitComponent{{Type: "BODY", Text: body}},
	}

	url := fmt.Sprintf("%s/%s/message_templates", c.baseURL(), c.cfg.WhatsAppBusinessAccountID)
	resp, err := c.sendRequest(ctx, http.MethodPost, url, req)
	if err != nil {
		return "", err
	}

	var parsed submitResponse
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return "", err
	}
	// The management API keys templates by name; the id is only needed for
	// deletion, which goes through a new draft instead.
	return name, nil
}
