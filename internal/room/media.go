package room

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tutorlink/tutorlink/internal/tracks"
)

// Credentials grant access to one media room.
type Credentials struct {
	Token string `json:"token"`
	URL   string `json:"url"`
	// CanDraw is granted by the server per session, not derived from the role.
	CanDraw bool `json:"can_draw"`
}

type TokenSource interface {
	Token(ctx context.Context, roomName string) (Credentials, error)
}

// HTTPTokenSource asks the coordination service for media credentials.
type HTTPTokenSource struct {
	BaseURL   string
	AuthToken string
	Client    *http.Client
}

func (s HTTPTokenSource) Token(ctx context.Context, roomName string) (Credentials, error) {
	body, err := json.Marshal(map[string]string{"room_name": roomName})
	if err != nil {
		return Credentials{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.BaseURL, "/")+"/v1/media/token", bytes.NewReader(body))
	if err != nil {
		return Credentials{}, err
	}
	req.Header.Set("Authorization", "Bearer "+s.AuthToken)
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("media token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return Credentials{}, fmt.Errorf("media token: status %d %s", resp.StatusCode, e.Code)
	}
	var creds Credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return Credentials{}, fmt.Errorf("media token: decode: %w", err)
	}
	if creds.Token == "" || creds.URL == "" {
		return Credentials{}, fmt.Errorf("media token: empty credentials")
	}
	return creds, nil
}

type EventKind string

const (
	EventTrackPublished   EventKind = "track_published"
	EventTrackUnpublished EventKind = "track_unpublished"
	EventData             EventKind = "data"
	EventDisconnected     EventKind = "disconnected"
)

// Event is a lifecycle notification from the media connection.
type Event struct {
	Kind  EventKind
	Track tracks.Track
	Data  []byte
	Err   error
}

// MediaConnection is a joined media room. Send delivers a best-effort data
// message to the other participant.
type MediaConnection interface {
	Events() <-chan Event
	Send(data []byte) error
	Close() error
}

type MediaConnector interface {
	Connect(ctx context.Context, creds Credentials) (MediaConnection, error)
}
