// Package room is a thin REST client for the external room service that
// hosts client sessions. It covers the three calls the server needs: create
// a room, look one up, and mint a join token. Errors are surfaced verbatim;
// retry policy belongs to the caller.
package room

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultExpiry is how long created rooms and tokens stay valid.
const DefaultExpiry = 30 * time.Minute

// Room describes a room on the service.
type Room struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	URL    string     `json:"url"`
	Config RoomConfig `json:"config"`
}

// RoomConfig carries the room properties the client sets and reads.
type RoomConfig struct {
	// Exp is the expiry as a Unix timestamp.
	Exp int64 `json:"exp,omitempty"`
}

// apiError is the service's error body.
type apiError struct {
	Error string `json:"error"`
	Info  string `json:"info"`
}

// Client talks to the room service.
type Client struct {
	http   *resty.Client
	expiry time.Duration
}

// Option configures a [Client].
type Option func(*Client)

// WithExpiry overrides the room and token lifetime.
func WithExpiry(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.expiry = d
		}
	}
}

// WithHTTPClient swaps the underlying resty client, mainly for tests.
func WithHTTPClient(hc *resty.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the service at baseURL, authenticating with
// apiKey as a bearer token.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(apiKey).
			SetHeader("Content-Type", "application/json").
			SetTimeout(10 * time.Second),
		expiry: DefaultExpiry,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type createRoomRequest struct {
	Name       string     `json:"name,omitempty"`
	Properties RoomConfig `json:"properties"`
}

// CreateRoom creates a room. With an empty name the service picks one. The
// room expires after the configured lifetime.
func (c *Client) CreateRoom(ctx context.Context, name string) (Room, error) {
	var (
		room   Room
		apiErr apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(createRoomRequest{
			Name:       name,
			Properties: RoomConfig{Exp: time.Now().Add(c.expiry).Unix()},
		}).
		SetResult(&room).
		SetError(&apiErr).
		Post("/rooms")
	if err != nil {
		return Room{}, fmt.Errorf("room: create room: %w", err)
	}
	if resp.IsError() {
		return Room{}, fmt.Errorf("room: create room: %s: %s", resp.Status(), apiErr.Info)
	}
	return room, nil
}

// GetRoom looks up a room by name.
func (c *Client) GetRoom(ctx context.Context, name string) (Room, error) {
	var (
		room   Room
		apiErr apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&room).
		SetError(&apiErr).
		Get("/rooms/" + name)
	if err != nil {
		return Room{}, fmt.Errorf("room: get room %q: %w", name, err)
	}
	if resp.IsError() {
		return Room{}, fmt.Errorf("room: get room %q: %s: %s", name, resp.Status(), apiErr.Info)
	}
	return room, nil
}

type createTokenRequest struct {
	Properties tokenProperties `json:"properties"`
}

type tokenProperties struct {
	RoomName string `json:"room_name"`
	Exp      int64  `json:"exp"`
	IsOwner  bool   `json:"is_owner,omitempty"`
}

type createTokenResponse struct {
	Token string `json:"token"`
}

// CreateToken mints a join token for the named room, expiring with the
// configured lifetime.
func (c *Client) CreateToken(ctx context.Context, roomName string, owner bool) (string, error) {
	var (
		out    createTokenResponse
		apiErr apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(createTokenRequest{Properties: tokenProperties{
			RoomName: roomName,
			Exp:      time.Now().Add(c.expiry).Unix(),
			IsOwner:  owner,
		}}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/meeting-tokens")
	if err != nil {
		return "", fmt.Errorf("room: create token for %q: %w", roomName, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("room: create token for %q: %s: %s", roomName, resp.Status(), apiErr.Info)
	}
	return out.Token, nil
}
