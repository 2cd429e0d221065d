package viseme

import (
	"fmt"
	"time"
)

// Phase is the articulation sub-phase of a viseme on a timeline.
type Phase uint8

const (
	// Hold is the steady part of a viseme. Single-phase timelines only use Hold.
	Hold Phase = iota

	// Opening is the transition into the pose.
	Opening

	// Closing is the transition out of the pose.
	Closing
)

// String returns the lowercase name of the phase.
func (p Phase) String() string {
	switch p {
	case Hold:
		return "hold"
	case Opening:
		return "opening"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Pose is a viseme tagged with its phase. It is built once when a timeline is
// constructed and never re-parsed from strings.
type Pose struct {
	Viseme Viseme
	Phase  Phase
}

// Key renders the pose as "viseme/phase", e.g. "wide_open/hold". It is meant
// for logs and wire output only.
func (p Pose) Key() string {
	return p.Viseme.String() + "/" + p.Phase.String()
}

// Rest is the pose published whenever no source is driving the engine.
var Rest = Pose{Viseme: Silence, Phase: Hold}

// Mode is the driving mode selected when a source is attached.
type Mode uint8

const (
	// ModeNone means no source is attached.
	ModeNone Mode = iota

	// ModeAudio derives visemes from live signal analysis.
	ModeAudio

	// ModeText derives visemes from a precomputed utterance timeline.
	ModeText
)

// String returns the lowercase name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeAudio:
		return "audio"
	case ModeText:
		return "text"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// RenderState is what renderers receive on every tick. A renderer alpha-blends
// from the Previous pose to the Current pose using Progress as blend factor.
type RenderState struct {
	// Current is the viseme the mouth is moving towards.
	Current Viseme `json:"current"`

	// Previous is the viseme the mouth is moving away from.
	Previous Viseme `json:"previous"`

	// Phase is the timeline phase of Current. Always [Hold] in audio mode.
	Phase Phase `json:"phase"`

	// Progress is the blend factor in [0, 1].
	Progress float64 `json:"progress"`

	// At is the elapsed session time the state was sampled at.
	At time.Duration `json:"-"`

	// Mode is the driving mode that produced the state.
	Mode Mode `json:"mode"`
}

// SilentState is the state published when the engine is idle.
func SilentState() RenderState {
	return RenderState{Current: Silence, Previous: Silence, Phase: Hold, Progress: 1, Mode: ModeNone}
}
