package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tutorlink/tutorlink/internal/logging"
	"github.com/tutorlink/tutorlink/internal/protocol"
	"github.com/tutorlink/tutorlink/internal/reliability"
)

// Watcher is the tutor-side view: it listens on the push channel and polls
// the status endpoint, merging both into its own Reconciler.
type Watcher struct {
	baseURL    string
	token      string
	client     *http.Client
	dialer     *websocket.Dialer
	reconciler *Reconciler
	interval   time.Duration
	log        *logging.Logger

	mu    sync.Mutex
	rooms map[string]Occupancy
}

func NewWatcher(baseURL, token string, reconciler *Reconciler, interval time.Duration, log *logging.Logger) *Watcher {
	if log == nil {
		log = logging.Nop()
	}
	return &Watcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		client:     &http.Client{Timeout: 10 * time.Second},
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		reconciler: reconciler,
		interval:   interval,
		log:        log.Component("watcher"),
		rooms:      make(map[string]Occupancy),
	}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.pushLoop(ctx)
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if err := w.PollOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("status poll failed")
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce fetches room occupancy and applies it. Results that arrive after
// ctx is cancelled are dropped.
func (w *Watcher) PollOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/v1/rooms/status", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("room status: unexpected status %d", resp.StatusCode)
	}
	var body struct {
		Rooms []Occupancy `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("room status: decode: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	w.mu.Lock()
	for _, occ := range body.Rooms {
		w.rooms[occ.RoomName] = occ
	}
	w.mu.Unlock()
	for _, occ := range body.Rooms {
		if occ.Stale {
			continue
		}
		w.reconciler.ApplyPoll(occ.RoomName, occ.IsOnline)
	}
	return nil
}

// Rooms returns the last polled occupancy per room.
func (w *Watcher) Rooms() map[string]Occupancy {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]Occupancy, len(w.rooms))
	for k, v := range w.rooms {
		out[k] = v
	}
	return out
}

// HandlePush applies one message received on the push channel.
func (w *Watcher) HandlePush(raw []byte) error {
	msg, err := protocol.ParseServerMessage(raw)
	if err != nil {
		return err
	}
	switch m := msg.(type) {
	case protocol.StudentOnline:
		w.reconciler.ApplyWebhook(m.RoomName, m.Online())
	case protocol.Hello:
		w.log.Info().Str("connection", m.ConnectionID).Msg("push channel ready")
	case protocol.ErrorEvent:
		w.log.Warn().Str("code", m.Code).Str("detail", m.Detail).Msg("push channel error")
	}
	return nil
}

func (w *Watcher) pushLoop(ctx context.Context) {
	attempt := 0
	for ctx.Err() == nil {
		connected, err := w.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			attempt = 0
		}
		delay := reliability.ExponentialBackoff(attempt, 500*time.Millisecond, 30*time.Second)
		w.log.Warn().Err(err).Dur("retry_in", delay).Msg("push channel lost")
		attempt++
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (w *Watcher) consume(ctx context.Context) (bool, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+w.token)
	conn, _, err := w.dialer.DialContext(ctx, pushURL(w.baseURL), header)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		if msgType != websocket.TextMessage || ctx.Err() != nil {
			continue
		}
		if err := w.HandlePush(data); err != nil {
			w.log.Debug().Err(err).Msg("ignored push message")
		}
	}
}

func pushURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/v1/presence/ws"
}
