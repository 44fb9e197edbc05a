// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielhkuo/livedraw/models"
)

var (
	ErrNoExtension = errors.New("no extension session for tab")
	ErrNoResponse  = errors.New("extension did not respond")
	ErrNotQueued   = errors.New("extension session not accepting commands")
)

// PanelCommander drives the side panel through the extension background
// session connected to the hub. It implements relay.PanelController.
type PanelCommander struct {
	hub *Hub
	url string
}

func NewPanelCommander(hub *Hub, panelURL string) *PanelCommander {
	return &PanelCommander{hub: hub, url: panelURL}
}

func (p *PanelCommander) Open(ctx context.Context, tabID int) error {
	return p.command(ctx, models.MessageOpenSidePanel, tabID)
}

func (p *PanelCommander) Close(ctx context.Context, tabID int) error {
	return p.command(ctx, models.MessageCloseSidePanel, tabID)
}

func (p *PanelCommander) command(ctx context.Context, t models.MessageType, tabID int) error {
	ext, ok := p.hub.ExtensionFor(tabID)
	if !ok {
		return fmt.Errorf("%w %d", ErrNoExtension, tabID)
	}
	msg, err := models.NewMessage(t, models.PanelCommand{TabID: tabID, URL: p.url})
	if err != nil {
		return err
	}
	reply, ok, err := ext.Request(ctx, msg)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoResponse
	}
	var resp models.RuntimeResponse
	if err := reply.DecodePayload(&resp); err != nil {
		return fmt.Errorf("invalid %s response: %w", t, err)
	}
	if !resp.Success {
		if resp.Error == "" {
			resp.Error = "rejected"
		}
		return fmt.Errorf("%s: %s", t, resp.Error)
	}
	return nil
}

// WindowFallback asks the extension to open the panel's destination in a
// new window. It implements relay.Fallback.
type WindowFallback struct {
	hub *Hub
	url string
}

func NewWindowFallback(hub *Hub, url string) *WindowFallback {
	return &WindowFallback{hub: hub, url: url}
}

// OpenWindow only queues the command, so it still works after a panel
// attempt has used up ctx.
func (f *WindowFallback) OpenWindow(_ context.Context, tabID int) error {
	ext, ok := f.hub.ExtensionFor(tabID)
	if !ok {
		return fmt.Errorf("%w %d", ErrNoExtension, tabID)
	}
	msg, err := models.NewMessage(models.MessageOpenWindow, models.PanelCommand{TabID: tabID, URL: f.url})
	if err != nil {
		return err
	}
	if !ext.TrySend(msg) {
		return fmt.Errorf("%w: open-window for tab %d", ErrNotQueued, tabID)
	}
	return nil
}
