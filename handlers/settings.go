// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/livedraw/middleware"
	"github.com/danielhkuo/livedraw/models"
	"github.com/danielhkuo/livedraw/syncer"
)

const maxSettingsBody = 1 << 20

type SettingsHandler struct {
	svc    *syncer.Service
	facade syncer.Facade
}

// NewSettingsHandler serves settings from facade and publishes writes
// through svc, which must be backed by the same facade.
func NewSettingsHandler(svc *syncer.Service, facade syncer.Facade) *SettingsHandler {
	return &SettingsHandler{svc: svc, facade: facade}
}

// GetSettings handles GET /settings/{kind}
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseKind(r.PathValue("kind"))
	if err != nil {
		middleware.ErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	resp := models.SettingsResponse{Kind: kind}
	if vf, ok := h.facade.(syncer.VersionedFacade); ok {
		resp.Payload, resp.UpdatedAt, err = vf.GetVersioned(r.Context(), kind)
	} else {
		resp.Payload, err = h.facade.Get(r.Context(), kind)
	}
	if err != nil {
		slog.Error("failed to read settings", "kind", kind, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if resp.Payload == nil {
		middleware.ErrorResponse(w, http.StatusNotFound, "No settings stored for "+string(kind))
		return
	}

	middleware.JSONResponse(w, http.StatusOK, resp)
}

// PutSettings handles PUT /settings/{kind}
// The body is the settings payload itself; it is persisted and broadcast.
func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseKind(r.PathValue("kind"))
	if err != nil {
		middleware.ErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.ErrorResponse(w, http.StatusRequestEntityTooLarge, "Settings payload too large")
			return
		}
		middleware.ErrorResponse(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	if !json.Valid(body) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	ev, err := h.svc.Update(r.Context(), kind, json.RawMessage(body))
	if err != nil {
		slog.Error("failed to update settings", "kind", kind, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}

	slog.Info("settings updated", "kind", kind, "timestamp", ev.Timestamp)
	middleware.JSONResponse(w, http.StatusOK, models.UpdateSettingsResponse{
		Kind:      ev.Kind,
		Timestamp: ev.Timestamp,
		OriginID:  ev.OriginID,
	})
}
