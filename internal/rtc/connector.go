package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pion/webrtc/v3"

	"github.com/tutorlink/tutorlink/internal/identity"
	"github.com/tutorlink/tutorlink/internal/logging"
	"github.com/tutorlink/tutorlink/internal/reliability"
	"github.com/tutorlink/tutorlink/internal/room"
	"github.com/tutorlink/tutorlink/internal/roomsvc"
	"github.com/tutorlink/tutorlink/internal/tracks"
)

var _ room.MediaConnector = (*Connector)(nil)

var ErrNoParticipant = errors.New("media token carries no participant identity")

// Signaler trades the local offer for the media server's answer.
type Signaler interface {
	Exchange(ctx context.Context, creds room.Credentials, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
}

// Connector joins a media room over a single peer connection and publishes
// the local cameras in plan order, so the first one is the face camera.
type Connector struct {
	Config   webrtc.Configuration
	Cameras  []tracks.Publication
	Signaler Signaler
	// OnLocalTrack hands each published camera to the capture pipeline.
	OnLocalTrack func(tracks.Publication, *webrtc.TrackLocalStaticSample)
	Log          *logging.Logger
}

func (c *Connector) Connect(ctx context.Context, creds room.Credentials) (room.MediaConnection, error) {
	participant, err := ParticipantFromToken(creds.Token)
	if err != nil {
		return nil, err
	}
	pc, err := webrtc.NewPeerConnection(c.Config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	link, err := NewLink(pc, c.Log)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}

	for seq, pub := range c.Cameras {
		local, err := NewLocalTrack(participant, tracks.KindCamera, seq)
		if err != nil {
			_ = link.Close()
			return nil, err
		}
		if _, err := link.Publish(local); err != nil {
			_ = link.Close()
			return nil, err
		}
		if c.OnLocalTrack != nil {
			c.OnLocalTrack(pub, local)
		}
	}

	if err := c.negotiate(ctx, pc, creds); err != nil {
		_ = link.Close()
		return nil, err
	}
	return link, nil
}

func (c *Connector) negotiate(ctx context.Context, pc *webrtc.PeerConnection, creds room.Credentials) error {
	if c.Signaler == nil {
		return errors.New("no signaler configured")
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return ctx.Err()
	}

	answer, err := c.Signaler.Exchange(ctx, creds, *pc.LocalDescription())
	if err != nil {
		return fmt.Errorf("signal: %w", err)
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// ParticipantFromToken reads the participant identity out of a media access
// token. The client cannot check the signature; the media server does.
func ParticipantFromToken(token string) (string, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("parse media token: %w", err)
	}
	if _, _, err := identity.Parse(claims.Subject); err != nil {
		return "", ErrNoParticipant
	}
	return claims.Subject, nil
}

// HTTPSignaler posts the SDP offer to the media server and reads the SDP
// answer from the response body.
type HTTPSignaler struct {
	// Endpoint defaults to the credentials URL in http form plus /whip.
	Endpoint string
	Client   *http.Client
}

func (s HTTPSignaler) Exchange(ctx context.Context, creds room.Credentials, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = roomsvc.HTTPBase(creds.URL) + "/whip"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offer.SDP))
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Authorization", "Bearer "+creds.Token)

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("read answer: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return webrtc.SessionDescription{}, &roomsvc.StatusError{
			Code:      resp.StatusCode,
			Body:      strings.TrimSpace(string(body)),
			Retryable: reliability.IsRetryableHTTPStatus(resp.StatusCode),
		}
	}
	if len(body) == 0 {
		return webrtc.SessionDescription{}, errors.New("empty answer")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: string(body)}, nil
}
