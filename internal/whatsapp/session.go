package whatsapp

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/mattn/go-sqlite3"
)

// Session states. One authenticated session per gateway process.
const (
	StateConnecting = "connecting"
	StateQRReady    = "qr_ready"
	StateOpen       = "open"
	StateClosing    = "closing"
)

const (
	reconnectBaseDelay = 5 * time.Second
	reconnectMaxDelay  = 2 * time.Minute
	maxReconnectTries  = 5
	maxQRRefreshes     = 5
)

// Status is the non-blocking snapshot returned to status polls.
type Status struct {
	Connected bool
	State     string
}

// SessionManager owns the single authenticated session to WhatsApp.
// Credentials live in a whatsmeow sqlstore; they are loaded at start,
// saved by the library on every update, and wiped on logout.
type SessionManager struct {
	client    *whatsmeow.Client
	container *sqlstore.Container

	dbPath     string
	proxyURL   string
	deviceName string

	state     string
	qrCode    string // raw pairing material from the network
	qrImage   string // base64 PNG data URI rendered for the client
	loggedOut bool   // explicit logout observed; reconnect is forbidden
	mu        sync.RWMutex

	// exit forces the clean-slate restart after logout. Overridable in
	// tests; the process supervisor is expected to relaunch the gateway.
	exit func(code int)
}

// NewSessionManager creates an unconnected manager. Call Start to
// resume or begin pairing.
func NewSessionManager(dbPath, proxyURL, deviceName string) *SessionManager {
	return &SessionManager{
		dbPath:     dbPath,
		proxyURL:   proxyURL,
		deviceName: deviceName,
		state:      StateConnecting,
		exit:       os.Exit,
	}
}

// Start opens the credential store and establishes the session, either
// resuming persisted credentials or entering the QR pairing flow.
func (s *SessionManager) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	dbLog := waLog.Stdout("SessionDB", "WARN", true)
	dbURI := fmt.Sprintf("file:%s?_foreign_keys=on", s.dbPath)
	container, err := sqlstore.New(ctx, "sqlite3", dbURI, dbLog)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	s.container = container

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return fmt.Errorf("failed to get device: %w", err)
	}

	osName := s.deviceName
	platform := waCompanionReg.DeviceProps_PlatformType(1) // Chrome
	store.DeviceProps.PlatformType = &platform
	store.DeviceProps.Os = &osName

	clientLog := waLog.Stdout("Session", "INFO", true)
	client := whatsmeow.NewClient(device, clientLog)
	// Reconnects are owned here so the bounded-backoff policy applies.
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true

	if s.proxyURL != "" {
		if err := client.SetProxyAddress(s.proxyURL); err != nil {
			container.Close()
			return fmt.Errorf("failed to set proxy address: %w", err)
		}
		log.Printf("[SESSION] Using proxy %s", s.proxyURL)
	}

	client.AddEventHandler(s.handleEvent)
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	if device.ID != nil {
		log.Printf("[SESSION] Existing credentials found, resuming session")
		if err := client.Connect(); err != nil {
			return fmt.Errorf("failed to connect with stored credentials: %w", err)
		}
		return nil
	}

	log.Printf("[SESSION] No credentials stored, starting pairing flow")
	return s.startQRFlow(ctx)
}

// startQRFlow arms the QR channel and connects. Pairing material flows
// in through watchQR until the network confirms authentication.
func (s *SessionManager) startQRFlow(ctx context.Context) error {
	qrChan, err := s.client.GetQRChannel(ctx)
	if err != nil {
		if err == whatsmeow.ErrQRStoreContainsID {
			return s.client.Connect()
		}
		return fmt.Errorf("failed to get QR channel: %w", err)
	}

	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	go s.watchQR(qrChan)
	return nil
}

// watchQR consumes pairing events. On timeout the flow is re-armed with
// capped backoff; repeated timeouts leave the manager in connecting.
func (s *SessionManager) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	timeouts := 0
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			timeouts = 0
			s.setPairingMaterial(evt.Code)
			log.Printf("[SESSION] New pairing code received")
		case "success":
			log.Printf("[SESSION] Pairing confirmed by network")
			return
		case "timeout":
			timeouts++
			s.clearPairingMaterial(StateConnecting)
			if timeouts >= maxQRRefreshes {
				log.Printf("[SESSION] Pairing code expired %d times, giving up until next connect", timeouts)
				return
			}
			backoff := time.Duration(timeouts*timeouts) * time.Second
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			log.Printf("[SESSION] Pairing code expired, refreshing in %v", backoff)
			go func() {
				time.Sleep(backoff)
				if err := s.refreshQR(); err != nil {
					log.Printf("[SESSION] QR refresh failed: %v", err)
				}
			}()
			return
		}
	}
}

// refreshQR restarts the pairing flow after a code expired.
func (s *SessionManager) refreshQR() error {
	s.mu.RLock()
	client := s.client
	loggedOut := s.loggedOut
	s.mu.RUnlock()

	if client == nil || loggedOut {
		return nil
	}
	if client.Store.ID != nil && client.IsConnected() {
		return nil
	}
	if client.IsConnected() {
		client.Disconnect()
		time.Sleep(1 * time.Second)
	}
	return s.startQRFlow(context.Background())
}

func (s *SessionManager) setPairingMaterial(code string) {
	image := ""
	if png, err := qrcode.Encode(code, qrcode.Medium, 256); err != nil {
		log.Printf("[SESSION] Failed to render QR image: %v", err)
	} else {
		image = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateOpen || s.state == StateClosing {
		return
	}
	s.state = StateQRReady
	s.qrCode = code
	s.qrImage = image
}

func (s *SessionManager) clearPairingMaterial(nextState string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qrCode = ""
	s.qrImage = ""
	if s.state != StateClosing {
		s.state = nextState
	}
}

// handleEvent drives the state machine from library signals.
func (s *SessionManager) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		s.mu.Lock()
		s.state = StateOpen
		s.qrCode = ""
		s.qrImage = ""
		s.mu.Unlock()
		log.Printf("[SESSION] Authenticated, session open")

	case *events.PairSuccess:
		s.mu.Lock()
		s.state = StateOpen
		s.qrCode = ""
		s.qrImage = ""
		s.mu.Unlock()
		log.Printf("[SESSION] Paired with device %s", v.ID.String())

	case *events.Disconnected:
		s.mu.Lock()
		wasLoggedOut := s.loggedOut
		if s.state != StateClosing {
			s.state = StateConnecting
		}
		s.mu.Unlock()
		if wasLoggedOut {
			return
		}
		log.Printf("[SESSION] Disconnected, scheduling reconnect")
		go s.reconnect()

	case *events.LoggedOut:
		// Upstream invalidated the credentials. Never reconnect with
		// them; the gateway needs a fresh pairing after restart.
		s.mu.Lock()
		s.loggedOut = true
		s.state = StateClosing
		s.qrCode = ""
		s.qrImage = ""
		s.mu.Unlock()
		log.Printf("[SESSION] Logged out by network: %v", v.Reason)

	case *events.StreamReplaced:
		// Another client took over the session. Reconnecting here would
		// just steal it back and loop.
		s.mu.Lock()
		if s.state != StateClosing {
			s.state = StateConnecting
		}
		s.mu.Unlock()
		log.Printf("[SESSION] Stream replaced by another device, not reconnecting")

	case *events.TemporaryBan:
		log.Printf("[SESSION] Temporary ban: %s, expires in %v", v.Code.String(), v.Expire)
	}
}

// reconnect retries with exponential backoff: 5s, 10s, 20s, 40s, 80s,
// capped at 2 minutes. Explicit logout aborts the loop.
func (s *SessionManager) reconnect() {
	for attempt := 0; attempt < maxReconnectTries; attempt++ {
		time.Sleep(backoffDelay(attempt))

		s.mu.RLock()
		client := s.client
		loggedOut := s.loggedOut
		s.mu.RUnlock()

		if client == nil || loggedOut {
			return
		}
		if client.IsConnected() && client.IsLoggedIn() {
			return
		}

		log.Printf("[SESSION] Reconnect attempt %d/%d", attempt+1, maxReconnectTries)
		if err := client.Connect(); err != nil {
			log.Printf("[SESSION] Reconnect attempt %d failed: %v", attempt+1, err)
			continue
		}

		time.Sleep(3 * time.Second)
		if client.IsConnected() && client.IsLoggedIn() {
			log.Printf("[SESSION] Reconnected")
			return
		}
	}
	log.Printf("[SESSION] All reconnect attempts failed, staying in %s", StateConnecting)
}

func backoffDelay(attempt int) time.Duration {
	d := reconnectBaseDelay << attempt
	if d > reconnectMaxDelay {
		d = reconnectMaxDelay
	}
	return d
}

// Status never blocks and never fails.
func (s *SessionManager) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{Connected: s.state == StateOpen, State: s.state}
}

// QRCode returns the current pairing material as a PNG data URI, or
// false when none is available (state is not qr_ready).
func (s *SessionManager) QRCode() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateQRReady || s.qrImage == "" {
		return "", false
	}
	return s.qrImage, true
}

// PairPhone requests an 8-digit pairing code as an alternative to QR
// scanning. The number must include the country code.
func (s *SessionManager) PairPhone(ctx context.Context, number string) (string, error) {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()

	if client == nil {
		return "", fmt.Errorf("session not started")
	}

	code, err := client.PairPhone(ctx, sanitizeNumber(number), true, whatsmeow.PairClientChrome, s.deviceName)
	if err != nil {
		return "", fmt.Errorf("failed to request pairing code: %w", err)
	}
	if len(code) == 8 {
		code = code[:4] + "-" + code[4:]
	}
	return code, nil
}

// Logout invalidates the session upstream (best effort), wipes local
// credentials unconditionally, and schedules a process exit so the
// supervisor restarts the gateway with a clean slate. The returned
// error reports cleanup failures; the restart happens regardless.
func (s *SessionManager) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateClosing
	s.loggedOut = true
	s.qrCode = ""
	s.qrImage = ""
	client := s.client
	s.mu.Unlock()

	var upstreamErr error
	if client != nil {
		if upstreamErr = client.Logout(ctx); upstreamErr != nil {
			log.Printf("[SESSION] Upstream logout failed (wiping local state anyway): %v", upstreamErr)
		}
		client.Disconnect()
	}

	wipeErr := s.wipeCredentials(ctx)

	go func() {
		time.Sleep(500 * time.Millisecond)
		log.Printf("[SESSION] Restarting process after logout")
		s.exit(1)
	}()

	if upstreamErr != nil {
		return fmt.Errorf("upstream logout failed: %w", upstreamErr)
	}
	if wipeErr != nil {
		return fmt.Errorf("credential wipe failed: %w", wipeErr)
	}
	return nil
}

// wipeCredentials deletes every stored device and removes the session
// database file.
func (s *SessionManager) wipeCredentials(ctx context.Context) error {
	if s.container != nil {
		devices, err := s.container.GetAllDevices(ctx)
		if err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}
		for _, device := range devices {
			if err := s.container.DeleteDevice(ctx, device); err != nil {
				log.Printf("[SESSION] Failed to delete device %s: %v", device.ID, err)
			}
		}
		s.container.Close()
		s.container = nil
	}

	if err := os.Remove(s.dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// Close releases the session without logging out (shutdown path).
func (s *SessionManager) Close() {
	s.mu.Lock()
	client := s.client
	container := s.container
	s.client = nil
	s.container = nil
	s.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
	if container != nil {
		container.Close()
	}
}

func (s *SessionManager) whatsmeowClient() *whatsmeow.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}
