// Package roomsvc talks to the media provider: it mints room access tokens,
// queries room occupancy and authenticates the provider's webhooks.
package roomsvc

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidWebhook = errors.New("invalid webhook signature")

// VideoGrant is the provider's room permission claim.
type VideoGrant struct {
	Room         string `json:"room,omitempty"`
	RoomJoin     bool   `json:"roomJoin,omitempty"`
	RoomAdmin    bool   `json:"roomAdmin,omitempty"`
	RoomList     bool   `json:"roomList,omitempty"`
	CanPublish   *bool  `json:"canPublish,omitempty"`
	CanSubscribe *bool  `json:"canSubscribe,omitempty"`
}

type AccessClaims struct {
	Name   string      `json:"name,omitempty"`
	Video  *VideoGrant `json:"video,omitempty"`
	SHA256 string      `json:"sha256,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs provider tokens with the API key pair.
type TokenIssuer struct {
	apiKey    string
	apiSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewTokenIssuer(apiKey, apiSecret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{apiKey: apiKey, apiSecret: []byte(apiSecret), ttl: ttl, now: time.Now}
}

// ParticipantToken lets participantIdentity join room with publish and
// subscribe rights.
func (i *TokenIssuer) ParticipantToken(participantIdentity, name, room string) (string, error) {
	if participantIdentity == "" || room == "" {
		return "", errors.New("participant token needs identity and room")
	}
	yes := true
	return i.sign(participantIdentity, name, &VideoGrant{
		Room:         room,
		RoomJoin:     true,
		CanPublish:   &yes,
		CanSubscribe: &yes,
	}, i.ttl)
}

// AdminToken authorizes room service calls.
func (i *TokenIssuer) AdminToken() (string, error) {
	return i.sign("", "", &VideoGrant{RoomAdmin: true, RoomList: true}, 10*time.Minute)
}

func (i *TokenIssuer) sign(subject, name string, grant *VideoGrant, ttl time.Duration) (string, error) {
	now := i.now()
	claims := AccessClaims{
		Name:  name,
		Video: grant,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   subject,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.apiSecret)
	if err != nil {
		return "", fmt.Errorf("sign provider token: %w", err)
	}
	return signed, nil
}

// WebhookVerifier checks the provider's signed Authorization header: an
// HS256 token issued by our API key whose sha256 claim covers the body.
type WebhookVerifier struct {
	apiKey    string
	apiSecret []byte
	now       func() time.Time
}

func NewWebhookVerifier(apiKey, apiSecret string) *WebhookVerifier {
	return &WebhookVerifier{apiKey: apiKey, apiSecret: []byte(apiSecret), now: time.Now}
}

func (v *WebhookVerifier) Verify(body []byte, authHeader string) error {
	if authHeader == "" {
		return fmt.Errorf("%w: missing authorization", ErrInvalidWebhook)
	}
	token, err := jwt.ParseWithClaims(authHeader, &AccessClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.apiSecret, nil
	}, jwt.WithIssuer(v.apiKey), jwt.WithTimeFunc(v.now))
	if err != nil || !token.Valid {
		return fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok {
		return ErrInvalidWebhook
	}
	if claims.SHA256 != BodyHash(body) {
		return fmt.Errorf("%w: body hash mismatch", ErrInvalidWebhook)
	}
	return nil
}

// BodyHash is the base64 sha256 digest carried in webhook tokens.
func BodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// SignWebhook builds the Authorization value the provider would send for
// body. Used by tests and local tooling.
func (i *TokenIssuer) SignWebhook(body []byte) (string, error) {
	now := i.now()
	claims := AccessClaims{
		SHA256: BodyHash(body),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.apiSecret)
}
