// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/danielhkuo/livedraw/models"
)

// PanelController is the host's native panel primitive.
type PanelController interface {
	Open(ctx context.Context, tabID int) error
	Close(ctx context.Context, tabID int) error
}

// Fallback opens the panel's destination some other way, typically a new
// browser window, when the panel itself cannot be opened.
type Fallback interface {
	OpenWindow(ctx context.Context, tabID int) error
}

type FallbackFunc func(ctx context.Context, tabID int) error

func (f FallbackFunc) OpenWindow(ctx context.Context, tabID int) error { return f(ctx, tabID) }

// SettingsUpdateFunc rebroadcasts a trigger-settings-update payload to
// sibling surfaces.
type SettingsUpdateFunc func(ctx context.Context, payload json.RawMessage) error

// Relay tracks a best-effort open flag per tab. The host exposes no
// reliable "panel closed" event, so the map is an approximation: it is
// cleared entirely on any focus change.
type Relay struct {
	panels   PanelController
	fallback Fallback
	onUpdate SettingsUpdateFunc
	logger   *slog.Logger

	mu    sync.Mutex
	state map[int]bool
	gates map[int]*tabGate
}

type tabGate struct {
	mu   sync.Mutex
	refs int
}

type Options struct {
	Fallback         Fallback
	OnSettingsUpdate SettingsUpdateFunc
	Logger           *slog.Logger
}

func New(panels PanelController, opts Options) *Relay {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Relay{
		panels:   panels,
		fallback: opts.Fallback,
		onUpdate: opts.OnSettingsUpdate,
		logger:   opts.Logger.WithGroup("relay"),
		state:    make(map[int]bool),
		gates:    make(map[int]*tabGate),
	}
}

// Open opens the panel for tabID. If the controller fails, the fallback
// runs exactly once and the response is marked as a fallback.
func (r *Relay) Open(ctx context.Context, tabID int) models.RuntimeResponse {
	return r.OpenPanel(ctx, tabID, true)
}

// OpenPanel is Open with the fallback optional. A caller that handles the
// failure itself passes fallback == false so the window opens only once.
func (r *Relay) OpenPanel(ctx context.Context, tabID int, fallback bool) models.RuntimeResponse {
	unlock := r.lockTab(tabID)
	defer unlock()
	return r.open(ctx, tabID, fallback)
}

func (r *Relay) open(ctx context.Context, tabID int, fallback bool) models.RuntimeResponse {
	err := r.panels.Open(ctx, tabID)
	if err == nil {
		r.mu.Lock()
		r.state[tabID] = true
		r.mu.Unlock()
		r.logger.Info("side panel opened", "tab_id", tabID)
		return models.RuntimeResponse{Success: true, IsOpen: true}
	}

	r.logger.Warn("failed to open side panel", "tab_id", tabID, "error", err)
	if !fallback || r.fallback == nil {
		return models.RuntimeResponse{Success: false, Error: err.Error()}
	}
	if ferr := r.fallback.OpenWindow(ctx, tabID); ferr != nil {
		r.logger.Error("fallback window failed", "tab_id", tabID, "error", ferr)
		return models.RuntimeResponse{
			Success:  false,
			Error:    fmt.Sprintf("open panel: %v; fallback: %v", err, ferr),
			Fallback: true,
		}
	}
	return models.RuntimeResponse{Success: true, Fallback: true}
}

// Close closes the panel for tabID. On failure the tab keeps its flag.
func (r *Relay) Close(ctx context.Context, tabID int) models.RuntimeResponse {
	unlock := r.lockTab(tabID)
	defer unlock()
	return r.close(ctx, tabID)
}

func (r *Relay) close(ctx context.Context, tabID int) models.RuntimeResponse {
	if err := r.panels.Close(ctx, tabID); err != nil {
		r.logger.Warn("failed to close side panel", "tab_id", tabID, "error", err)
		return models.RuntimeResponse{Success: false, Error: err.Error(), IsOpen: r.IsOpen(tabID)}
	}
	r.mu.Lock()
	delete(r.state, tabID)
	r.mu.Unlock()
	r.logger.Info("side panel closed", "tab_id", tabID)
	return models.RuntimeResponse{Success: true, IsOpen: false}
}

func (r *Relay) Toggle(ctx context.Context, tabID int) models.RuntimeResponse {
	return r.TogglePanel(ctx, tabID, true)
}

// TogglePanel flips the tab's panel. Toggles for one tab run one at a
// time, so two quick toggles open and then close.
func (r *Relay) TogglePanel(ctx context.Context, tabID int, fallback bool) models.RuntimeResponse {
	unlock := r.lockTab(tabID)
	defer unlock()
	if r.IsOpen(tabID) {
		return r.close(ctx, tabID)
	}
	return r.open(ctx, tabID, fallback)
}

// lockTab serializes panel operations on one tab. Gates are dropped once
// no operation holds or waits on them.
func (r *Relay) lockTab(tabID int) (unlock func()) {
	r.mu.Lock()
	g, ok := r.gates[tabID]
	if !ok {
		g = &tabGate{}
		r.gates[tabID] = g
	}
	g.refs++
	r.mu.Unlock()

	g.mu.Lock()
	return func() {
		g.mu.Unlock()
		r.mu.Lock()
		g.refs--
		if g.refs == 0 {
			delete(r.gates, tabID)
		}
		r.mu.Unlock()
	}
}

func (r *Relay) IsOpen(tabID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state[tabID]
}

// TabClosed forgets the tab's state.
func (r *Relay) TabClosed(tabID int) {
	r.mu.Lock()
	delete(r.state, tabID)
	r.mu.Unlock()
}

// FocusChanged clears the state of every tab, since the user may have
// closed panels without telling anyone.
func (r *Relay) FocusChanged() {
	r.mu.Lock()
	n := len(r.state)
	r.state = make(map[int]bool)
	r.mu.Unlock()
	if n > 0 {
		r.logger.Debug("focus changed, panel state reset", "tabs", n)
	}
}

// OpenTabs lists tabs believed to have an open panel, ascending.
func (r *Relay) OpenTabs() []int {
	r.mu.Lock()
	open := lo.Keys(lo.PickBy(r.state, func(_ int, isOpen bool) bool { return isOpen }))
	r.mu.Unlock()
	slices.Sort(open)
	return open
}

// Handle dispatches a runtime message. Every request gets a response.
func (r *Relay) Handle(ctx context.Context, req models.RuntimeRequest) models.RuntimeResponse {
	switch req.Type {
	case models.MessageToggleSidePanel:
		return r.Toggle(ctx, req.TabID)
	case models.MessageOpenSidePanel:
		return r.Open(ctx, req.TabID)
	case models.MessageCloseSidePanel:
		return r.Close(ctx, req.TabID)
	case models.MessageTriggerSettingsUpdate:
		if r.onUpdate == nil {
			return models.RuntimeResponse{Success: false, Error: "settings relay not configured"}
		}
		if err := r.onUpdate(ctx, req.Payload); err != nil {
			r.logger.Warn("failed to relay settings update", "error", err)
			return models.RuntimeResponse{Success: false, Error: err.Error()}
		}
		return models.RuntimeResponse{Success: true}
	default:
		r.logger.Warn("unexpected runtime message", "type", req.Type)
		return models.RuntimeResponse{Success: false, Error: fmt.Sprintf("unsupported message type %q", req.Type)}
	}
}
