package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/whatsapp-campaigns/platform/internal/whatsapp"
)

// Session is the narrow surface the HTTP layer needs from the session
// manager.
type Session interface {
	Status() whatsapp.Status
	QRCode() (string, bool)
	PairPhone(ctx context.Context, number string) (string, error)
	Logout(ctx context.Context) error
}

// MessageSender delivers single messages over the session.
type MessageSender interface {
	VerifyNumber(ctx context.Context, number string) (string, error)
	Send(ctx context.Context, req whatsapp.SendRequest) (string, error)
}

// Server is the gateway HTTP API.
type Server struct {
	Instance string
	session  Session
	sender   MessageSender

	sendTimeout time.Duration
}

// NewServer creates the gateway API server.
func NewServer(instance string, session Session, sender MessageSender, sendTimeout time.Duration) *Server {
	return &Server{
		Instance:    instance,
		session:     session,
		sender:      sender,
		sendTimeout: sendTimeout,
	}
}

// RegisterRoutes registers HTTP routes.
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/qr-code", s.handleQRCode).Methods(http.MethodGet)
	r.HandleFunc("/pair-phone", s.handlePairPhone).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/verify-number", s.handleVerifyNumber).Methods(http.MethodPost)
	r.HandleFunc("/send-message", s.handleSendMessage).Methods(http.MethodPost)

	// Synchronous variant consumed by the backend dispatcher, which
	// must await each recipient's outcome.
	r.HandleFunc("/internal/send", s.handleInternalSend).Methods(http.MethodPost)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.session.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"healthy":   true,
		"instance":  s.Instance,
		"connected": st.Connected,
	})
}

// GET /status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.session.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"connected":         st.Connected,
		"connection_status": st.State,
	})
}

// GET /qr-code
func (s *Server) handleQRCode(w http.ResponseWriter, r *http.Request) {
	qr, ok := s.session.QRCode()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"message": "no QR code available",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"qr": qr})
}

// POST /pair-phone
func (s *Server) handlePairPhone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Number string `json:"number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Number == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "message": "number is required",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	code, err := s.session.PairPhone(ctx, req.Number)
	if err != nil {
		log.Printf("[GATEWAY] Pairing code request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false, "error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"pairing_code": code,
	})
}

// POST /logout responds before the process-terminating side effect;
// the caller observes the connection drop afterwards.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Logout(r.Context()); err != nil {
		log.Printf("[GATEWAY] Logout cleanup failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false, "error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// POST /verify-number
func (s *Server) handleVerifyNumber(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Number string `json:"number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Number == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "message": "number is required",
		})
		return
	}

	corrected, err := s.sender.VerifyNumber(r.Context(), req.Number)
	switch {
	case errors.Is(err, whatsapp.ErrNotConnected):
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"success": false, "message": "gateway is not connected",
		})
	case errors.Is(err, whatsapp.ErrRecipientNotFound):
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"success": false})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false, "error": err.Error(),
		})
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":         true,
			"correctedNumber": corrected,
		})
	}
}

type sendMessageRequest struct {
	Number   string `json:"number"`
	Message  string `json:"message"`
	AnexoURL string `json:"anexoUrl,omitempty"`
	FileName string `json:"fileName,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

func (req *sendMessageRequest) toSend() whatsapp.SendRequest {
	send := whatsapp.SendRequest{Number: req.Number, Message: req.Message}
	if req.AnexoURL != "" {
		send.Attachment = &whatsapp.Attachment{
			Locator:  req.AnexoURL,
			MimeType: req.MimeType,
			FileName: req.FileName,
		}
	}
	return send
}

func (s *Server) decodeSendRequest(w http.ResponseWriter, r *http.Request) (*sendMessageRequest, bool) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "message": "invalid JSON",
		})
		return nil, false
	}
	if req.Number == "" || (req.Message == "" && req.AnexoURL == "") {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "message": "number and message (or attachment) are required",
		})
		return nil, false
	}
	if !s.session.Status().Connected {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"success": false, "message": "gateway is not connected",
		})
		return nil, false
	}
	return &req, true
}

// POST /send-message accepts the request, launches the delivery in the
// background and returns immediately. The outcome is only logged; this
// endpoint is fire-and-forget by contract.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSendRequest(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"success": true})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
		defer cancel()
		if _, err := s.sender.Send(ctx, req.toSend()); err != nil {
			log.Printf("[GATEWAY] Background send to %s failed: %v", req.Number, err)
		}
	}()
}

// POST /internal/send blocks until the delivery finishes and reports
// the outcome.
func (s *Server) handleInternalSend(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSendRequest(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.sendTimeout)
	defer cancel()

	corrected, err := s.sender.Send(ctx, req.toSend())
	switch {
	case errors.Is(err, whatsapp.ErrNotConnected):
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"success": false, "error": err.Error(),
		})
	case errors.Is(err, whatsapp.ErrRecipientNotFound):
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"success": false, "error": err.Error(),
		})
	case err != nil:
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"success": false, "error": err.Error(),
		})
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":         true,
			"correctedNumber": corrected,
		})
	}
}
