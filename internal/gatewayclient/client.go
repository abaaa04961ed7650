package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/whatsapp-campaigns/platform/internal/campaign"
)

// Client delivers campaign messages through a gateway instance. Each
// call blocks until the gateway has confirmed or rejected the send, so
// the dispatcher can record per-recipient outcomes.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type sendPayload struct {
	Number   string `json:"number"`
	Message  string `json:"message,omitempty"`
	AnexoURL string `json:"anexoUrl,omitempty"`
	FileName string `json:"fileName,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

type sendResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Send implements campaign.Sender.
func (c *Client) Send(ctx context.Context, number, message string, attachment *campaign.Attachment) error {
	payload := sendPayload{Number: number, Message: message}
	if attachment != nil {
		payload.AnexoURL = attachment.URL
		payload.MimeType = attachment.MimeType
		payload.FileName = attachment.FileName
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding send payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var parsed sendResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &parsed) == nil && parsed.Error != "" {
		return fmt.Errorf("gateway rejected send (%d): %s", resp.StatusCode, parsed.Error)
	}
	return fmt.Errorf("gateway rejected send: status %d", resp.StatusCode)
}
