package gatewayclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whatsapp-campaigns/platform/internal/campaign"
)

func TestSendSuccess(t *testing.T) {
	var got sendPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/internal/send", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"success": true, "correctedNumber": "551199999999"})
	}))
	defer ts.Close()

	client := New(ts.URL, 5*time.Second)
	err := client.Send(context.Background(), "5511999999999", "Olá Maria!", nil)

	require.NoError(t, err)
	assert.Equal(t, "5511999999999", got.Number)
	assert.Equal(t, "Olá Maria!", got.Message)
	assert.Empty(t, got.AnexoURL)
}

func TestSendForwardsAttachment(t *testing.T) {
	var got sendPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := New(ts.URL, 5*time.Second)
	err := client.Send(context.Background(), "5511999999999", "veja o anexo", &campaign.Attachment{
		URL:      "https://files.example.com/k-oferta.pdf",
		MimeType: "application/pdf",
		FileName: "oferta.pdf",
	})

	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/k-oferta.pdf", got.AnexoURL)
	assert.Equal(t, "application/pdf", got.MimeType)
	assert.Equal(t, "oferta.pdf", got.FileName)
}

func TestSendGatewayRejection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "recipient is not on whatsapp"})
	}))
	defer ts.Close()

	client := New(ts.URL, 5*time.Second)
	err := client.Send(context.Background(), "5511000000000", "olá", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipient is not on whatsapp")
	assert.Contains(t, err.Error(), "404")
}

func TestSendGatewayRejectionWithoutBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	client := New(ts.URL, 5*time.Second)
	err := client.Send(context.Background(), "5511999999999", "olá", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestSendGatewayDown(t *testing.T) {
	client := New("http://127.0.0.1:1", time.Second)
	err := client.Send(context.Background(), "5511999999999", "olá", nil)
	require.Error(t, err)
}
