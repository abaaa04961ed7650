package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

// Attachment describes optional media delivered with a message. The
// locator is a public URL the gateway downloads before re-uploading to
// the WhatsApp media store.
type Attachment struct {
	Locator  string
	MimeType string
	FileName string
}

// SendRequest is one delivery to one recipient. Message may be empty
// only when an attachment is present.
type SendRequest struct {
	Number     string
	Message    string
	Attachment *Attachment
}

// Sender delivers individual messages over the open session with
// human-like presence signals and typing pauses.
type Sender struct {
	session *SessionManager
	http    *http.Client
}

// NewSender creates a sender bound to the session manager.
func NewSender(session *SessionManager) *Sender {
	return &Sender{
		session: session,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// VerifyNumber checks whether the number is reachable on WhatsApp,
// retrying with the mobile ninth digit removed when the first form is
// unknown. Returns the number the network confirmed.
func (s *Sender) VerifyNumber(ctx context.Context, number string) (string, error) {
	if s.session.Status().State != StateOpen {
		return "", ErrNotConnected
	}
	client := s.session.whatsmeowClient()
	if client == nil {
		return "", ErrNotConnected
	}

	for _, candidate := range numberCandidates(number) {
		resp, err := client.IsOnWhatsApp(ctx, []string{candidate})
		if err != nil {
			return "", fmt.Errorf("reachability check failed: %w", err)
		}
		if len(resp) > 0 && resp[0].IsIn {
			return resp[0].JID.User, nil
		}
	}
	return "", ErrRecipientNotFound
}

// Send delivers one message. It fails fast when the session is not
// open, resolves the recipient, simulates typing, and sends content
// selected by the attachment's MIME type. Returns the confirmed
// recipient number.
func (s *Sender) Send(ctx context.Context, req SendRequest) (string, error) {
	confirmed, err := s.VerifyNumber(ctx, req.Number)
	if err != nil {
		return "", err
	}

	client := s.session.whatsmeowClient()
	if client == nil {
		return "", ErrNotConnected
	}

	jid := types.NewJID(confirmed, types.DefaultUserServer)

	// Presence pair around the delivery. Not atomic with the send;
	// interleaving across concurrent sends is cosmetic only.
	if err := client.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText); err != nil {
		log.Printf("[SEND] Failed to send composing presence to %s: %v", confirmed, err)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(typingDelay()):
	}

	msg, err := s.buildMessage(ctx, client, req)
	if err != nil {
		return "", err
	}

	if _, err := client.SendMessage(ctx, jid, msg); err != nil {
		return "", fmt.Errorf("delivery failed: %w", err)
	}

	if err := client.SendChatPresence(ctx, jid, types.ChatPresencePaused, types.ChatPresenceMediaText); err != nil {
		log.Printf("[SEND] Failed to send paused presence to %s: %v", confirmed, err)
	}

	log.Printf("[SEND] Delivered to %s", confirmed)
	return confirmed, nil
}

// buildMessage assembles the wire payload: plain text without an
// attachment, otherwise media chosen by MIME type with the message as
// caption.
func (s *Sender) buildMessage(ctx context.Context, client *whatsmeow.Client, req SendRequest) (*waE2E.Message, error) {
	if req.Attachment == nil {
		return &waE2E.Message{Conversation: proto.String(req.Message)}, nil
	}

	data, err := s.fetchAttachment(ctx, req.Attachment.Locator)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attachment: %w", err)
	}

	kind := mediaKind(req.Attachment.MimeType)
	uploaded, err := client.Upload(ctx, data, uploadType(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to upload attachment: %w", err)
	}

	switch kind {
	case "video":
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(req.Attachment.MimeType),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uint64(len(data))),
			Caption:       proto.String(req.Message),
		}}, nil
	case "document":
		fileName := req.Attachment.FileName
		if fileName == "" {
			fileName = "anexo"
		}
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(req.Attachment.MimeType),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uint64(len(data))),
			FileName:      proto.String(fileName),
			Caption:       proto.String(req.Message),
		}}, nil
	default:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(req.Attachment.MimeType),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uint64(len(data))),
			Caption:       proto.String(req.Message),
		}}, nil
	}
}

func (s *Sender) fetchAttachment(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// typingDelay returns 1-3 seconds to mimic a human composing.
func typingDelay() time.Duration {
	return time.Duration(1000+rand.Intn(2001)) * time.Millisecond
}

// mediaKind maps a MIME type to the WhatsApp payload kind: video for
// video/*, document for PDFs, image for everything else.
func mediaKind(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "video"):
		return "video"
	case mimeType == "application/pdf":
		return "document"
	default:
		return "image"
	}
}

func uploadType(kind string) whatsmeow.MediaType {
	switch kind {
	case "video":
		return whatsmeow.MediaVideo
	case "document":
		return whatsmeow.MediaDocument
	default:
		return whatsmeow.MediaImage
	}
}

// sanitizeNumber strips everything but digits.
func sanitizeNumber(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// numberCandidates returns the normalized forms to try against the
// network. Brazilian mobile numbers (55 + area code + 9 digits) are
// also tried without the inserted ninth digit, since older accounts
// are registered under the 8-digit local number.
func numberCandidates(number string) []string {
	n := sanitizeNumber(number)
	candidates := []string{n}
	if strings.HasPrefix(n, "55") && len(n) == 13 && n[4] == '9' {
		candidates = append(candidates, n[:4]+n[5:])
	}
	return candidates
}
