// Package validator implements the Payload Validator (spec.md §4.6) applied
// to every viewer→agent event before it reaches the Relay Dispatcher.
//
// Grounded on the teacher's internal/validator/validator.go struct-tag
// style, but re-expressed as a set of total functions from a parsed event
// payload to accepted-or-not, since spec.md requires silent drop rather
// than a reported validation error: a hostile viewer must not be able to
// learn anything from a malformed event, let alone crash the agent's
// injection layer.
package validator

import "math"

const (
	maxKeyLen  = 20
	maxTextLen = 500
	minCoord   = -10
	maxCoord   = 100000
	minQuality = 10
	maxQuality = 100
	minFPS     = 1
	maxFPS     = 60
)

// MouseButton enumerates the accepted button values for click/down/up events.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

func validButton(b MouseButton) bool {
	switch b {
	case ButtonLeft, ButtonRight, ButtonMiddle:
		return true
	default:
		return false
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func inRange(f, lo, hi float64) bool {
	return finite(f) && f >= lo && f <= hi
}

// MouseMove validates a mouse-move payload's coordinates.
func MouseMove(x, y float64) bool {
	return inRange(x, minCoord, maxCoord) && inRange(y, minCoord, maxCoord)
}

// MouseClick validates a click/double-click/right-click payload.
func MouseClick(x, y float64, button MouseButton) bool {
	return inRange(x, minCoord, maxCoord) && inRange(y, minCoord, maxCoord) && validButton(button)
}

// MouseButtonEvent validates a mouse-down/mouse-up payload.
func MouseButtonEvent(x, y float64, button MouseButton) bool {
	return MouseClick(x, y, button)
}

// MouseScroll validates a mouse-scroll payload's deltas.
func MouseScroll(deltaX, deltaY float64) bool {
	return finite(deltaX) && finite(deltaY)
}

// KeyPress validates a key-press payload.
func KeyPress(key string, modifiers []string) bool {
	if len(key) == 0 || len(key) > maxKeyLen {
		return false
	}
	return true
}

// KeyType validates a key-type (text entry) payload.
func KeyType(text string) bool {
	return len(text) <= maxTextLen
}

// QualityUpdate validates an update-quality payload.
func QualityUpdate(quality int) bool {
	return quality >= minQuality && quality <= maxQuality
}

// FPSUpdate validates an update-fps payload.
func FPSUpdate(fps int) bool {
	return fps >= minFPS && fps <= maxFPS
}
