// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danielhkuo/livedraw/models"
)

type ClientOptions struct {
	// Policy lists the host origins this client will talk to.
	Policy         OriginPolicy
	RequestTimeout time.Duration
	// Handshake is sent by Handshake and describes this client.
	Handshake models.Handshake
	// Fallback opens the degraded alternative when the side panel cannot be
	// opened, typically a new window at the same destination.
	Fallback func(ctx context.Context, tabID int) error
	Logger   *slog.Logger
	Dialer   *websocket.Dialer
}

// Client is the embedded side of the bridge: an iframe, a side panel, or
// the extension background.
type Client struct {
	session    *Session
	dispatcher *Dispatcher
	opts       ClientOptions
	logger     *slog.Logger

	cancel context.CancelFunc
	runErr chan error

	mu      sync.Mutex
	authTok string
	hasTok  bool
}

// Dial connects to a bridge server. The server's origin, derived from url,
// must be allowed by opts.Policy; origin is sent as this client's Origin.
func Dial(ctx context.Context, url, origin string, opts ClientOptions) (*Client, error) {
	peer, err := OriginFromURL(url)
	if err != nil {
		return nil, err
	}
	if !opts.Policy.Allowed(peer) {
		return nil, fmt.Errorf("%w: %s", ErrOriginNotAllowed, peer)
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial bridge: %w", err)
	}
	return NewClient(conn, peer, opts), nil
}

// NewClient runs a client over an established connection. peerOrigin is
// checked against opts.Policy on every incoming message.
func NewClient(conn Conn, peerOrigin string, opts ClientOptions) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.WithGroup("bridge_client")

	c := &Client{
		dispatcher: NewDispatcher(opts.Policy, opts.Logger),
		opts:       opts,
		logger:     logger,
		runErr:     make(chan error, 1),
	}
	c.session = NewSession(conn, SessionOptions{
		ID:             "client",
		Origin:         peerOrigin,
		Dispatcher:     c.dispatcher,
		RequestTimeout: opts.RequestTimeout,
		Logger:         logger,
	})
	c.dispatcher.Handle(models.MessageHandshake, c.handleHandshake)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go func() {
		c.runErr <- c.session.Run(ctx)
	}()
	return c
}

// handleHandshake acknowledges a handshake the host initiates.
func (c *Client) handleHandshake(ctx context.Context, s *Session, msg models.CrossContextMessage) {
	if msg.RequestID == "" {
		return
	}
	if err := s.Reply(ctx, msg, models.MessageHandshake, c.opts.Handshake); err != nil {
		c.logger.Debug("failed to ack handshake", "error", err)
	}
}

// On registers fn for messages of type t pushed by the host.
func (c *Client) On(t models.MessageType, fn HandlerFunc) {
	c.dispatcher.Handle(t, fn)
}

// OnSettingsUpdate registers fn for settings changes pushed by the host.
func (c *Client) OnSettingsUpdate(fn func(models.SettingsChangeEvent)) {
	c.On(models.MessageTriggerSettingsUpdate, func(_ context.Context, _ *Session, msg models.CrossContextMessage) {
		var ev models.SettingsChangeEvent
		if err := msg.DecodePayload(&ev); err != nil {
			c.logger.Warn("invalid settings update", "error", err)
			return
		}
		fn(ev)
	})
}

// Session exposes the underlying session.
func (c *Client) Session() *Session { return c.session }

// Pending reports how many requests are waiting for a reply.
func (c *Client) Pending() int { return c.session.Requests().Len() }

func (c *Client) request(ctx context.Context, t models.MessageType, payload any) (models.CrossContextMessage, bool, error) {
	msg, err := models.NewMessage(t, payload)
	if err != nil {
		return models.CrossContextMessage{}, false, err
	}
	return c.session.Request(ctx, msg)
}

func (c *Client) send(ctx context.Context, t models.MessageType, payload any) error {
	msg, err := models.NewMessage(t, payload)
	if err != nil {
		return err
	}
	return c.session.Send(ctx, msg)
}

// Handshake announces this client's capabilities and waits for the ack.
func (c *Client) Handshake(ctx context.Context) (bool, error) {
	_, ok, err := c.request(ctx, models.MessageHandshake, c.opts.Handshake)
	return ok, err
}

// GetAuthToken asks the host for the auth token. No reply within the
// request timeout, or a null token, yields ("", false, nil).
func (c *Client) GetAuthToken(ctx context.Context) (string, bool, error) {
	reply, ok, err := c.request(ctx, models.MessageGetAuthToken, nil)
	if err != nil || !ok {
		return "", false, err
	}
	var tok *string
	if err := reply.DecodePayload(&tok); err != nil {
		return "", false, fmt.Errorf("invalid auth-token payload: %w", err)
	}
	if tok == nil {
		return "", false, nil
	}

	c.mu.Lock()
	c.authTok, c.hasTok = *tok, true
	c.mu.Unlock()
	return *tok, true, nil
}

// CachedAuthToken returns the token from the last successful GetAuthToken.
func (c *Client) CachedAuthToken() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authTok, c.hasTok
}

// SetAuthToken hands a token to the host for storage.
func (c *Client) SetAuthToken(ctx context.Context, token string) (models.RuntimeResponse, error) {
	reply, ok, err := c.request(ctx, models.MessageSetAuthToken, token)
	if err != nil {
		return models.RuntimeResponse{}, err
	}
	if !ok {
		return models.RuntimeResponse{Error: "no response"}, nil
	}
	var resp models.RuntimeResponse
	if err := reply.DecodePayload(&resp); err != nil {
		return models.RuntimeResponse{}, fmt.Errorf("invalid response payload: %w", err)
	}
	return resp, nil
}

// OpenSidePanel asks the host to open the side panel for tabID. A client
// with a Fallback owns it: the host is told not to fall back, and when the
// host fails or never answers the fallback runs exactly once and the
// result reports Fallback. Without one the host falls back instead.
func (c *Client) OpenSidePanel(ctx context.Context, tabID int) models.RuntimeResponse {
	cmd := models.PanelCommand{
		TabID:          tabID,
		TimeoutMS:      c.session.Requests().Timeout().Milliseconds(),
		CallerFallback: c.opts.Fallback != nil,
	}
	reply, ok, err := c.request(ctx, models.MessageOpenSidePanel, cmd)

	var resp models.RuntimeResponse
	switch {
	case err != nil:
		c.logger.Warn("open side panel failed", "tab_id", tabID, "error", err)
	case !ok:
		c.logger.Warn("open side panel got no response", "tab_id", tabID)
	default:
		if derr := reply.DecodePayload(&resp); derr != nil {
			c.logger.Warn("invalid open side panel response", "error", derr)
			resp = models.RuntimeResponse{}
		}
	}
	if resp.Success || resp.Fallback {
		return resp
	}
	if c.opts.Fallback == nil && resp.Error != "" {
		return resp
	}
	return c.fallback(ctx, tabID)
}

func (c *Client) fallback(ctx context.Context, tabID int) models.RuntimeResponse {
	if c.opts.Fallback == nil {
		return models.RuntimeResponse{Error: "side panel unavailable"}
	}
	if err := c.opts.Fallback(ctx, tabID); err != nil {
		c.logger.Error("side panel fallback failed", "tab_id", tabID, "error", err)
		return models.RuntimeResponse{Error: err.Error(), Fallback: true}
	}
	c.logger.Info("side panel fallback used", "tab_id", tabID)
	return models.RuntimeResponse{Success: true, Fallback: true}
}

// TriggerSettingsUpdate pushes a settings change to the host, which
// persists it and relays it to every other context.
func (c *Client) TriggerSettingsUpdate(ctx context.Context, kind models.Kind, payload json.RawMessage) (models.RuntimeResponse, error) {
	reply, ok, err := c.request(ctx, models.MessageTriggerSettingsUpdate, models.SettingsChangeEvent{Kind: kind, Payload: payload})
	if err != nil {
		return models.RuntimeResponse{}, err
	}
	if !ok {
		return models.RuntimeResponse{Error: "no response"}, nil
	}
	var resp models.RuntimeResponse
	if err := reply.DecodePayload(&resp); err != nil {
		return models.RuntimeResponse{}, fmt.Errorf("invalid response payload: %w", err)
	}
	return resp, nil
}

// SpinnerComplete tells the host and its other contexts a draw finished.
func (c *Client) SpinnerComplete(ctx context.Context, payload any) error {
	return c.send(ctx, models.MessageSpinnerComplete, payload)
}

// PullSettings asks the host for the current settings of kind. No reply
// within the request timeout yields (nil, nil).
func (c *Client) PullSettings(ctx context.Context, kind models.Kind) (json.RawMessage, error) {
	reply, ok, err := c.request(ctx, models.MessageGetSettings, models.GetSettingsPayload{Kind: kind})
	if err != nil || !ok {
		return nil, err
	}
	var resp models.SettingsResponse
	if err := reply.DecodePayload(&resp); err != nil {
		return nil, fmt.Errorf("invalid settings payload: %w", err)
	}
	if string(resp.Payload) == "null" {
		return nil, nil
	}
	return resp.Payload, nil
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.session.Done() }

// Close ends the session and returns the read error, if any.
func (c *Client) Close() error {
	c.cancel()
	c.session.Close()
	err := <-c.runErr
	c.runErr <- err
	return err
}
