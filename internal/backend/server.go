package backend

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/whatsapp-campaigns/platform/internal/campaign"
)

// CampaignStore is the persistence surface the handlers need.
type CampaignStore interface {
	Create(instance string, contacts []campaign.Contact, message string, attachment *campaign.Attachment) (string, error)
	GetStatus(id string) (*campaign.StatusInfo, error)
	ListHistory(instance string) ([]campaign.Summary, error)
}

// Runner executes a campaign job in the background.
type Runner interface {
	Run(ctx context.Context, job campaign.Job)
}

// UploadSigner issues presigned PUT URLs for campaign attachments.
type UploadSigner interface {
	PresignUpload(ctx context.Context, fileName string) (uploadURL, objectKey string, err error)
	PublicURL(objectKey string) string
}

type Server struct {
	store      CampaignStore
	dispatcher Runner
	uploader   UploadSigner
}

// NewServer wires the campaign handlers. uploader may be nil when no
// object storage is configured; upload URL requests then return 503.
func NewServer(store CampaignStore, dispatcher Runner, uploader UploadSigner) *Server {
	return &Server{store: store, dispatcher: dispatcher, uploader: uploader}
}

func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/campanhas/enviar/{instance}", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/campanhas/status/{id}", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/campanhas/{instance}", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/gerar-url-upload", s.handleUploadURL).Methods(http.MethodPost)
}

type submitRequest struct {
	Contatos         []campaign.Contact `json:"contatos"`
	Mensagem         string             `json:"mensagem"`
	AnexoKey         string             `json:"anexo_key"`
	MimeType         string             `json:"mime_type"`
	OriginalFileName string             `json:"original_file_name"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	instance := mux.Vars(r)["instance"]

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	if len(req.Contatos) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "contatos is required"})
		return
	}
	if strings.TrimSpace(req.Mensagem) == "" && req.AnexoKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "mensagem or anexo_key is required"})
		return
	}

	var attachment *campaign.Attachment
	if req.AnexoKey != "" {
		if s.uploader == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "object storage is not configured"})
			return
		}
		attachment = &campaign.Attachment{
			URL:      s.uploader.PublicURL(req.AnexoKey),
			MimeType: req.MimeType,
			FileName: req.OriginalFileName,
		}
	}

	id, err := s.store.Create(instance, req.Contatos, req.Mensagem, attachment)
	if err != nil {
		log.Printf("[BACKEND] failed to create campaign for %s: %v", instance, err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to create campaign"})
		return
	}

	job := campaign.Job{
		ID:         id,
		Contacts:   req.Contatos,
		Template:   req.Mensagem,
		Attachment: attachment,
	}
	go s.dispatcher.Run(context.Background(), job)

	log.Printf("[BACKEND] campaign %s started for %s (%d contacts)", id, instance, len(req.Contatos))
	writeJSON(w, http.StatusOK, map[string]any{"campaign_id": id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	info, err := s.store.GetStatus(id)
	if errors.Is(err, campaign.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "campaign not found"})
		return
	}
	if err != nil {
		log.Printf("[BACKEND] failed to load status for %s: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to load status"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	instance := mux.Vars(r)["instance"]

	history, err := s.store.ListHistory(instance)
	if err != nil {
		log.Printf("[BACKEND] failed to load history for %s: %v", instance, err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to load history"})
		return
	}
	if history == nil {
		history = []campaign.Summary{}
	}
	writeJSON(w, http.StatusOK, history)
}

type uploadURLRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	if s.uploader == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "object storage is not configured"})
		return
	}

	var req uploadURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	if req.FileName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "file_name is required"})
		return
	}

	uploadURL, objectKey, err := s.uploader.PresignUpload(r.Context(), req.FileName)
	if err != nil {
		log.Printf("[BACKEND] failed to presign upload for %q: %v", req.FileName, err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to generate upload URL"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"upload_url": uploadURL, "object_key": objectKey})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[BACKEND] failed to encode response: %v", err)
	}
}
