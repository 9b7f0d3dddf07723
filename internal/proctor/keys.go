package proctor

import "strings"

// KeyAction classifies a key combination against the deny list.
type KeyAction int

const (
	// KeyAllowed passes through to the page untouched.
	KeyAllowed KeyAction = iota
	// KeyFullscreenGesture is the Escape key: it exits fullscreen, so it
	// counts against the fullscreen counter and triggers re-enforcement.
	KeyFullscreenGesture
	// KeyBlocked is any other deny-listed combination; it is suppressed by
	// the shell and counts as a tab switch.
	KeyBlocked
)

// ClassifyKey matches a key press against the fixed deny list: Escape, F5,
// Ctrl/Cmd+R, Alt+Tab, Ctrl/Cmd+W, Ctrl/Cmd+Shift+W, Alt+F4,
// Ctrl+Alt+Delete, the OS/Meta key itself, and Ctrl+Shift+I.
func ClassifyKey(k KeyPress) KeyAction {
	key := strings.ToLower(k.Key)
	cmd := k.Ctrl || k.Meta

	switch {
	case key == "escape":
		return KeyFullscreenGesture
	case key == "f5":
		return KeyBlocked
	case k.Ctrl && !k.Shift && key == "r":
		return KeyBlocked
	case k.Alt && key == "tab":
		return KeyBlocked
	case cmd && key == "w":
		return KeyBlocked
	case k.Alt && key == "f4":
		return KeyBlocked
	case k.Ctrl && k.Alt && key == "delete":
		return KeyBlocked
	case key == "meta" || key == "os":
		return KeyBlocked
	case k.Ctrl && k.Shift && key == "i":
		return KeyBlocked
	}
	return KeyAllowed
}
