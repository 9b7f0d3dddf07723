package session

import "github.com/snsgroups/proctor-backend/internal/model"

// Notifier pushes engine-originated events to the student's shell. The
// WebSocket handler installs a live implementation when the shell connects;
// until then the engine runs against the no-op default, so a disconnected
// shell never stalls the attempt.
type Notifier interface {
	// Warn delivers a violation warning. modal warnings block interaction
	// until dismissed; non-modal ones are toast-style.
	Warn(kind model.ViolationKind, count int, modal bool)
	// EnforceFullscreen asks the shell to (re-)enter fullscreen.
	EnforceFullscreen()
	// FocusState reports window focus transitions.
	FocusState(has bool)
	// Finished tells the shell the attempt is submitted; redirect is the
	// post-exam landing path.
	Finished(redirect string)
	// SubmitFailed reports a failed submission; the attempt stays open.
	SubmitFailed(message string)
}

type noopNotifier struct{}

func (noopNotifier) Warn(model.ViolationKind, int, bool) {}
func (noopNotifier) EnforceFullscreen()                  {}
func (noopNotifier) FocusState(bool)                     {}
func (noopNotifier) Finished(string)                     {}
func (noopNotifier) SubmitFailed(string)                 {}
