// Package livekit issues media-server access tokens and requests agent dispatches over
// the server's Twirp JSON API.
package livekit

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTokenTTL = 6 * time.Hour

// ErrNotConfigured is returned when the API key or secret is missing.
var ErrNotConfigured = errors.New("livekit api key and secret are required")

// VideoGrant carries the room permissions of a token.
type VideoGrant struct {
	RoomJoin       bool   `json:"roomJoin,omitempty"`
	RoomAdmin      bool   `json:"roomAdmin,omitempty"`
	Room           string `json:"room,omitempty"`
	CanPublish     *bool  `json:"canPublish,omitempty"`
	CanSubscribe   *bool  `json:"canSubscribe,omitempty"`
	CanPublishData *bool  `json:"canPublishData,omitempty"`
}

// Claims is the access token payload.
type Claims struct {
	Name  string      `json:"name,omitempty"`
	Video *VideoGrant `json:"video,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs access tokens with the API secret.
type TokenIssuer struct {
	apiKey    string
	apiSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewTokenIssuer(apiKey, apiSecret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		ttl:       ttl,
		now:       time.Now,
	}
}

// Configured reports whether both key and secret are set.
func (i *TokenIssuer) Configured() bool {
	return i != nil && i.apiKey != "" && len(i.apiSecret) > 0
}

// ParticipantToken lets identity join roomName and publish, subscribe and send data.
func (i *TokenIssuer) ParticipantToken(roomName, identity string) (string, error) {
	allow := true
	return i.sign(identity, &VideoGrant{
		RoomJoin:       true,
		Room:           roomName,
		CanPublish:     &allow,
		CanSubscribe:   &allow,
		CanPublishData: &allow,
	})
}

// AdminToken authorizes server API calls against roomName.
func (i *TokenIssuer) AdminToken(roomName string) (string, error) {
	return i.sign("", &VideoGrant{RoomAdmin: true, Room: roomName})
}

func (i *TokenIssuer) sign(identity string, grant *VideoGrant) (string, error) {
	if !i.Configured() {
		return "", ErrNotConfigured
	}
	now := i.now()
	claims := Claims{
		Name:  identity,
		Video: grant,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   identity,
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.apiSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify parses a token issued with the same secret.
func (i *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return i.apiSecret, nil
	}, jwt.WithIssuer(i.apiKey))
	if err != nil {
		return nil, err
	}
	return claims, nil
}
