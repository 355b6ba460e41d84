package roomsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tutorlink/tutorlink/internal/reliability"
)

var ErrRoomNotFound = errors.New("room not found")

// Participant is one connected member of a media room.
type Participant struct {
	SID      string `json:"sid"`
	Identity string `json:"identity"`
	State    string `json:"state,omitempty"`
	JoinedAt int64  `json:"joined_at,omitempty"`
}

// StatusError is a non-2xx answer from the room service.
type StatusError struct {
	Code      int
	Body      string
	Retryable bool
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("room service status %d: %s", e.Code, e.Body)
}

// Client calls the provider's room service API.
type Client struct {
	baseURL    string
	tokens     *TokenIssuer
	httpClient *http.Client
}

// NewClient accepts the media URL in ws(s) or http(s) form.
func NewClient(mediaURL string, tokens *TokenIssuer, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: HTTPBase(mediaURL), tokens: tokens, httpClient: httpClient}
}

// HTTPBase turns a ws(s) media URL into its http(s) form.
func HTTPBase(u string) string {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	switch {
	case strings.HasPrefix(u, "wss://"):
		return "https://" + strings.TrimPrefix(u, "wss://")
	case strings.HasPrefix(u, "ws://"):
		return "http://" + strings.TrimPrefix(u, "ws://")
	default:
		return u
	}
}

// ListParticipants returns the members of room. A room the provider does
// not know yields ErrRoomNotFound.
func (c *Client) ListParticipants(ctx context.Context, room string) ([]Participant, error) {
	var out struct {
		Participants []Participant `json:"participants"`
	}
	if err := c.call(ctx, "ListParticipants", map[string]string{"room": room}, &out); err != nil {
		return nil, err
	}
	return out.Participants, nil
}

func (c *Client) call(ctx context.Context, method string, in, out any) error {
	token, err := c.tokens.AdminToken()
	if err != nil {
		return err
	}
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/twirp/livekit.RoomService/"+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("room service %s: %w", method, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("room service %s: read body: %w", method, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var twirpErr struct {
			Code string `json:"code"`
			Msg  string `json:"msg"`
		}
		_ = json.Unmarshal(raw, &twirpErr)
		if resp.StatusCode == http.StatusNotFound || twirpErr.Code == "not_found" {
			return ErrRoomNotFound
		}
		return &StatusError{
			Code:      resp.StatusCode,
			Body:      strings.TrimSpace(string(raw)),
			Retryable: reliability.IsRetryableHTTPStatus(resp.StatusCode),
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("room service %s: decode: %w", method, err)
	}
	return nil
}
