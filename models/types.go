package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrUnknownKind = errors.New("unknown settings kind")

// Kind tags the settings object carried by a change event.
type Kind string

// Settings kinds
const (
	KindSpinnerSettings Kind = "spinner-settings"
	KindTheme           Kind = "theme"
	KindBranding        Kind = "branding"
	KindCompetition     Kind = "competition"
	KindColumnMapping   Kind = "column-mapping"
)

// Kinds lists every settings kind in a stable order.
var Kinds = []Kind{
	KindSpinnerSettings,
	KindTheme,
	KindBranding,
	KindCompetition,
	KindColumnMapping,
}

// ParseKind validates a raw kind string
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// SettingsChangeEvent is the unit of propagation between contexts.
// Timestamp is wall-clock milliseconds and only used for recency checks.
type SettingsChangeEvent struct {
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
	OriginID  string          `json:"originId"`
}

// LeaderRecord is the lease stored in the shared leader slot.
type LeaderRecord struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

// Age reports how old the record is relative to now.
func (r LeaderRecord) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(r.Timestamp))
}

// Bridge message types
type MessageType string

const (
	MessageHandshake             MessageType = "handshake"
	MessageGetAuthToken          MessageType = "get-auth-token"
	MessageAuthToken             MessageType = "auth-token"
	MessageSetAuthToken          MessageType = "set-auth-token"
	MessageOpenSidePanel         MessageType = "open-side-panel"
	MessageCloseSidePanel        MessageType = "close-side-panel"
	MessageToggleSidePanel       MessageType = "toggle-side-panel"
	MessageOpenWindow            MessageType = "open-window"
	MessageTriggerSettingsUpdate MessageType = "trigger-settings-update"
	MessageSpinnerComplete       MessageType = "spinner-complete"
	MessageGetSettings           MessageType = "get-settings"
	MessageSettings              MessageType = "settings"
	MessageResponse              MessageType = "response"
)

// CrossContextMessage is the bridge's wire unit. RequestID pairs a request
// with its reply and is empty for fire-and-forget messages.
type CrossContextMessage struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage builds a message, encoding payload as JSON when non-nil.
func NewMessage(t MessageType, payload any) (CrossContextMessage, error) {
	msg := CrossContextMessage{Type: t}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return msg, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	msg.Payload = raw
	return msg, nil
}

// DecodePayload unmarshals the payload into v. A missing payload is not an error.
func (m CrossContextMessage) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// Handshake announces the embedding context's capabilities.
// InstallKey proves InstallID (see auth.GenerateRelayKey); without it the
// install id is not trusted.
type Handshake struct {
	IsExtension bool   `json:"isExtension"`
	IsSidePanel bool   `json:"isSidePanel"`
	TabID       int    `json:"tabId,omitempty"`
	InstallID   string `json:"installId,omitempty"`
	InstallKey  string `json:"installKey,omitempty"`
}

type SetAuthTokenPayload struct {
	Token string `json:"token"`
}

// PanelCommand asks for a panel operation on a tab. TimeoutMS is how long
// the requester waits for the answer. CallerFallback means the requester
// opens its own fallback on failure, so the receiver must not.
type PanelCommand struct {
	TabID          int    `json:"tabId"`
	URL            string `json:"url,omitempty"`
	TimeoutMS      int64  `json:"timeoutMs,omitempty"`
	CallerFallback bool   `json:"callerFallback,omitempty"`
}

type GetSettingsPayload struct {
	Kind Kind `json:"kind"`
}

// SidePanelState is the relay's best-effort view of one tab's panel.
type SidePanelState struct {
	TabID  int  `json:"tabId"`
	IsOpen bool `json:"isOpen"`
}

// Runtime messaging (extension UI page <-> background relay)

type RuntimeRequest struct {
	Type    MessageType     `json:"type"`
	TabID   int             `json:"tabId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type RuntimeResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	IsOpen   bool   `json:"isOpen,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
}

// HTTP response types

type SettingsResponse struct {
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt int64           `json:"updated_at,omitempty"`
}

type UpdateSettingsResponse struct {
	Kind      Kind   `json:"kind"`
	Timestamp int64  `json:"timestamp"`
	OriginID  string `json:"origin_id"`
}

type StatusResponse struct {
	OriginID   string        `json:"origin_id"`
	IsLeader   bool          `json:"is_leader"`
	Leader     *LeaderRecord `json:"leader,omitempty"`
	Transports []string      `json:"transports"`
	Sessions   int           `json:"sessions"`
	OpenPanels []int         `json:"open_panels"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
