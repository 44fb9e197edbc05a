// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danielhkuo/livedraw/auth"
	"github.com/danielhkuo/livedraw/models"
	"github.com/danielhkuo/livedraw/syncer"
)

// PanelOpener is the part of the background relay the bridge calls into.
// fallback is false when the requesting client opens its own fallback.
type PanelOpener interface {
	OpenPanel(ctx context.Context, tabID int, fallback bool) models.RuntimeResponse
	TogglePanel(ctx context.Context, tabID int, fallback bool) models.RuntimeResponse
}

// panelMargin is kept back from the requester's wait so the answer still
// reaches it in time.
const panelMargin = 4

type ServerOptions struct {
	Policy OriginPolicy
	Tokens auth.TokenProvider
	// InstallSalt verifies the install key sent in handshakes. Sessions
	// without a verified install id get no token access; an empty salt
	// verifies nothing.
	InstallSalt string
	Sync        *syncer.Service
	Panels      PanelOpener
	// Hub is shared with a PanelCommander when one drives the relay; a new
	// hub is created when nil.
	Hub               *Hub
	RequestTimeout    time.Duration
	MessagesPerSecond float64
	Logger            *slog.Logger
}

// Server is the website side of the bridge. Embedded frames, side panels,
// and the extension background connect over WebSocket; the upgrade is
// refused for origins outside the policy.
type Server struct {
	opts       ServerOptions
	upgrader   websocket.Upgrader
	hub        *Hub
	dispatcher *Dispatcher
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	unsubs []func()
}

func NewServer(opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	logger := opts.Logger.WithGroup("bridge")
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		opts:       opts,
		hub:        opts.Hub,
		dispatcher: NewDispatcher(opts.Policy, opts.Logger),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if !opts.Policy.Allowed(origin) {
				logger.Warn("rejecting bridge connection from disallowed origin", "origin", origin, "remote", r.RemoteAddr)
				return false
			}
			return true
		},
	}

	s.dispatcher.Handle(models.MessageHandshake, s.handleHandshake)
	s.dispatcher.Handle(models.MessageGetAuthToken, s.handleGetAuthToken)
	s.dispatcher.Handle(models.MessageSetAuthToken, s.handleSetAuthToken)
	s.dispatcher.Handle(models.MessageOpenSidePanel, s.handlePanel)
	s.dispatcher.Handle(models.MessageToggleSidePanel, s.handlePanel)
	s.dispatcher.Handle(models.MessageTriggerSettingsUpdate, s.handleTriggerSettingsUpdate)
	s.dispatcher.Handle(models.MessageSpinnerComplete, s.handleSpinnerComplete)
	s.dispatcher.Handle(models.MessageGetSettings, s.handleGetSettings)

	if opts.Sync != nil {
		// Local broadcasts carry the triggering session's id as origin, so
		// that session is skipped; remote events go to everyone.
		s.unsubs = append(s.unsubs,
			opts.Sync.SubscribeLocal(s.pushSettings),
			opts.Sync.Subscribe(s.pushSettings),
		)
	}

	return s
}

func (s *Server) Hub() *Hub { return s.hub }

// Dispatcher exposes the host's dispatcher, mainly for tests.
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// ServeHTTP upgrades the request and serves the session in the background.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("bridge upgrade failed", "error", err)
		return
	}

	id, err := auth.GenerateID(8)
	if err != nil {
		s.logger.Error("failed to generate session id", "error", err)
		conn.Close()
		return
	}

	session := NewSession(conn, SessionOptions{
		ID:                id,
		Origin:            r.Header.Get("Origin"),
		Dispatcher:        s.dispatcher,
		RequestTimeout:    s.opts.RequestTimeout,
		MessagesPerSecond: s.opts.MessagesPerSecond,
		Logger:            s.logger,
	})
	s.Serve(session)
}

// Serve registers session and runs it until it closes.
func (s *Server) Serve(session *Session) {
	s.hub.Add(session)
	s.logger.Info("bridge session opened", "session", session.ID(), "origin", session.Origin())

	go func() {
		defer s.hub.Remove(session)
		if err := session.Run(s.ctx); err != nil {
			s.logger.Debug("bridge session ended", "session", session.ID(), "error", err)
		}
		s.logger.Info("bridge session closed", "session", session.ID())
	}()
}

func (s *Server) pushSettings(ev models.SettingsChangeEvent) {
	msg, err := models.NewMessage(models.MessageTriggerSettingsUpdate, ev)
	if err != nil {
		s.logger.Error("failed to encode settings update", "error", err)
		return
	}
	n := s.hub.Broadcast(msg, ev.OriginID)
	s.logger.Debug("settings update pushed", "kind", ev.Kind, "sessions", n)
}

func (s *Server) handleHandshake(ctx context.Context, sess *Session, msg models.CrossContextMessage) {
	var h models.Handshake
	if err := msg.DecodePayload(&h); err != nil {
		s.logger.Warn("invalid handshake payload", "session", sess.ID(), "error", err)
		return
	}
	sess.SetCapabilities(h)
	verified := s.verifyInstall(h)
	if verified {
		sess.SetSubject(h.InstallID)
	}
	s.logger.Info("bridge handshake",
		"session", sess.ID(),
		"is_extension", h.IsExtension,
		"is_side_panel", h.IsSidePanel,
		"tab_id", h.TabID,
		"install_verified", verified,
	)
	if err := sess.Reply(ctx, msg, models.MessageHandshake, nil); err != nil {
		s.logger.Debug("failed to ack handshake", "error", err)
	}
}

func (s *Server) verifyInstall(h models.Handshake) bool {
	if h.InstallID == "" || s.opts.InstallSalt == "" {
		return false
	}
	if err := auth.ValidateRelayKey(h.InstallID, h.InstallKey, s.opts.InstallSalt); err != nil {
		s.logger.Warn("install key rejected", "install_id", h.InstallID)
		return false
	}
	return true
}

func (s *Server) handleGetAuthToken(ctx context.Context, sess *Session, msg models.CrossContextMessage) {
	var payload any
	if s.opts.Tokens != nil && sess.Subject() != "" {
		tok, ok, err := s.opts.Tokens.GetToken(ctx, sess.Subject())
		if err != nil {
			s.logger.Error("failed to read auth token", "session", sess.ID(), "error", err)
		} else if ok {
			payload = tok
		}
	}
	if err := sess.Reply(ctx, msg, models.MessageAuthToken, payload); err != nil {
		s.logger.Debug("failed to send auth token", "error", err)
	}
}

// decodeToken accepts either a bare string or {"token": "..."}.
func decodeToken(msg models.CrossContextMessage) string {
	var tok string
	if err := msg.DecodePayload(&tok); err == nil {
		return tok
	}
	var p models.SetAuthTokenPayload
	if err := msg.DecodePayload(&p); err == nil {
		return p.Token
	}
	return ""
}

func (s *Server) handleSetAuthToken(ctx context.Context, sess *Session, msg models.CrossContextMessage) {
	resp := models.RuntimeResponse{Success: true}
	tok := decodeToken(msg)
	switch {
	case s.opts.Tokens == nil:
		resp = models.RuntimeResponse{Error: "token storage not configured"}
	case sess.Subject() == "":
		resp = models.RuntimeResponse{Error: "install not verified"}
	case tok == "":
		resp = models.RuntimeResponse{Error: "token required"}
	default:
		if err := s.opts.Tokens.SetToken(ctx, sess.Subject(), tok); err != nil {
			s.logger.Error("failed to store auth token", "session", sess.ID(), "error", err)
			resp = models.RuntimeResponse{Error: "failed to store token"}
		}
	}
	s.replyIfAsked(ctx, sess, msg, resp)
}

// handlePanel runs off the read loop because the relay may wait on a
// reply that this same session has to deliver. The relay's wait is cut
// short of the requester's, and the relay falls back only when the
// requester will not.
func (s *Server) handlePanel(ctx context.Context, sess *Session, msg models.CrossContextMessage) {
	var cmd models.PanelCommand
	if err := msg.DecodePayload(&cmd); err != nil {
		s.logger.Warn("invalid panel payload", "session", sess.ID(), "error", err)
	}
	if cmd.TabID == 0 {
		if caps, ok := sess.Capabilities(); ok {
			cmd.TabID = caps.TabID
		}
	}

	go func() {
		opCtx := ctx
		if cmd.TimeoutMS > 0 {
			budget := time.Duration(cmd.TimeoutMS) * time.Millisecond
			var cancel context.CancelFunc
			opCtx, cancel = context.WithTimeout(ctx, budget-budget/panelMargin)
			defer cancel()
		}

		fallback := !cmd.CallerFallback
		var resp models.RuntimeResponse
		switch {
		case s.opts.Panels == nil:
			resp = models.RuntimeResponse{Error: "side panel relay not configured"}
		case msg.Type == models.MessageToggleSidePanel:
			resp = s.opts.Panels.TogglePanel(opCtx, cmd.TabID, fallback)
		default:
			resp = s.opts.Panels.OpenPanel(opCtx, cmd.TabID, fallback)
		}
		s.replyIfAsked(ctx, sess, msg, resp)
	}()
}

func (s *Server) handleTriggerSettingsUpdate(ctx context.Context, sess *Session, msg models.CrossContextMessage) {
	var ev models.SettingsChangeEvent
	if err := msg.DecodePayload(&ev); err != nil || ev.Kind == "" {
		s.logger.Warn("invalid settings update", "session", sess.ID(), "error", err)
		s.replyIfAsked(ctx, sess, msg, models.RuntimeResponse{Error: "invalid settings update"})
		return
	}
	if s.opts.Sync == nil {
		s.replyIfAsked(ctx, sess, msg, models.RuntimeResponse{Error: "settings sync not configured"})
		return
	}

	ev.OriginID = sess.ID()
	ev.Timestamp = 0
	if _, err := s.opts.Sync.Commit(ctx, ev); err != nil {
		s.logger.Error("failed to apply settings update", "kind", ev.Kind, "error", err)
		s.replyIfAsked(ctx, sess, msg, models.RuntimeResponse{Error: "failed to save settings"})
		return
	}
	s.replyIfAsked(ctx, sess, msg, models.RuntimeResponse{Success: true})
}

func (s *Server) handleSpinnerComplete(_ context.Context, sess *Session, msg models.CrossContextMessage) {
	msg.RequestID = ""
	n := s.hub.Broadcast(msg, sess.ID())
	s.logger.Info("spinner complete relayed", "session", sess.ID(), "sessions", n)
}

func (s *Server) handleGetSettings(ctx context.Context, sess *Session, msg models.CrossContextMessage) {
	var req models.GetSettingsPayload
	if err := msg.DecodePayload(&req); err != nil || req.Kind == "" {
		s.logger.Warn("invalid get-settings payload", "session", sess.ID(), "error", err)
		return
	}
	resp := models.SettingsResponse{Kind: req.Kind}
	if s.opts.Sync != nil {
		payload, err := s.opts.Sync.Get(ctx, req.Kind)
		if err != nil {
			s.logger.Error("failed to read settings", "kind", req.Kind, "error", err)
		}
		resp.Payload = payload
	}
	if resp.Payload == nil {
		resp.Payload = json.RawMessage("null")
	}
	if err := sess.Reply(ctx, msg, models.MessageSettings, resp); err != nil {
		s.logger.Debug("failed to send settings", "error", err)
	}
}

func (s *Server) replyIfAsked(ctx context.Context, sess *Session, req models.CrossContextMessage, resp models.RuntimeResponse) {
	if req.RequestID == "" {
		return
	}
	if err := sess.Reply(ctx, req, models.MessageResponse, resp); err != nil {
		s.logger.Debug("failed to send response", "type", req.Type, "error", err)
	}
}

// Close ends every session and detaches from the sync service.
func (s *Server) Close() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.cancel()
	s.hub.Close()
}
