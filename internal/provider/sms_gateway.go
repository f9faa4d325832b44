package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SMSGatewayAdapter delivers short messages through an HTTP gateway that
// accepts a JSON POST and answers with the gateway-assigned message id.
type SMSGatewayAdapter struct {
	URL     string
	AuthKey string
	From    string
	Client  *http.Client
}

func NewSMSGatewayAdapter(url, authKey, from string) *SMSGatewayAdapter {
	return &SMSGatewayAdapter{
		URL:     url,
		AuthKey: authKey,
		From:    from,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *SMSGatewayAdapter) Name() string { return "sms_gateway" }

type smsGatewayRequest struct {
	To      string            `json:"to"`
	From    string            `json:"from,omitempty"`
	Content string            `json:"content"`
	Meta    map[string]string `json:"meta,omitempty"`
}

type smsGatewayResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

func (a *SMSGatewayAdapter) Deliver(ctx context.Context, d Delivery) (string, error) {
	body, err := json.Marshal(smsGatewayRequest{
		To:      d.To,
		From:    a.From,
		Content: d.Text,
		Meta:    d.Metadata,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.AuthKey != "" {
		req.Header.Set("x-api-key", a.AuthKey)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms gateway request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("sms gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("sms gateway status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed smsGatewayResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("sms gateway decode: %w", err)
	}
	if parsed.MessageID == "" {
		return "", fmt.Errorf("sms gateway returned no message id")
	}
	return parsed.MessageID, nil
}

var _ Adapter = (*SMSGatewayAdapter)(nil)
