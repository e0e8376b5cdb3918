// Package conversation runs the dialogue loop: it owns the microphone
// stream and moves one state machine through wake detection, utterance
// capture, recognition, intent handling, and spoken replies. Everything
// audible the assistant does goes through this package, including alarm
// firings, so playback and capture never fight over the pipeline.
package conversation

// State is the phase the dialogue loop is in.
type State int

const (
	// StateIdle scans frames for the wake word.
	StateIdle State = iota

	// StateWakeup acknowledges a detection before listening starts.
	StateWakeup

	// StateListening feeds frames to the utterance capturer.
	StateListening

	// StateProcessing runs recognition, routing, and the backend call.
	StateProcessing

	// StateSpeaking plays the reply while watching for barge-in.
	StateSpeaking

	// StateError marks an unrecoverable turn failure; the loop apologises
	// if it still can and resets to idle.
	StateError

	// StateStopped is terminal; the loop has exited and the source is
	// closed.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWakeup:
		return "wakeup"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
