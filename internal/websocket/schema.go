// Package websocket defines the wire protocol between the exam shell and
// the proctoring stream.
package websocket

import "github.com/snsgroups/proctor-backend/internal/proctor"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSignal Action = "signal"
	ActionPing   Action = "ping"
)

// SignalRequest carries one raw shell signal: a fullscreen change, a
// visibility or focus transition, a key press, a click, or a face/noise
// detector event. Kind selects which optional fields are meaningful.
type SignalRequest struct {
	Action   Action             `json:"action"`
	Kind     proctor.SignalKind `json:"kind"`
	Active   *bool              `json:"active,omitempty"`
	Detected *bool              `json:"detected,omitempty"`
	Key      *proctor.KeyPress  `json:"key,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventWarning      Event = "warning"
	EventEnforce      Event = "enforce_fullscreen"
	EventFocus        Event = "focus"
	EventFinished     Event = "finished"
	EventSubmitFailed Event = "submit_failed"
	EventError        Event = "error"
	EventPong         Event = "pong"
)

// WarningResponse announces a violation increment. Modal warnings block the
// shell until acknowledged.
type WarningResponse struct {
	Event Event  `json:"event"`
	Kind  string `json:"kind"`
	Count int    `json:"count"`
	Modal bool   `json:"modal"`
}

// EnforceResponse asks the shell to (re-)enter fullscreen.
type EnforceResponse struct {
	Event Event `json:"event"`
}

// FocusResponse reports a focus transition back to the shell.
type FocusResponse struct {
	Event    Event `json:"event"`
	HasFocus bool  `json:"has_focus"`
}

// FinishedResponse tells the shell the attempt is submitted.
type FinishedResponse struct {
	Event    Event  `json:"event"`
	Redirect string `json:"redirect"`
}

// SubmitFailedResponse reports a failed submission; the attempt stays open.
type SubmitFailedResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
