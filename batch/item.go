// Package batch is the recording and transcription lifecycle manager. A
// Manager owns an ordered collection of items. Each item captures or
// receives audio, is transcribed, and then holds a follow-up conversation
// about the result. One capture device is shared by the whole collection.
package batch

import (
	"slices"

	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/conversation"
)

// State is an item's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StatePaused     State = "paused"
	StateReady      State = "ready"
	StateProcessing State = "processing"
	StateComplete   State = "complete"
	StateError      State = "error"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateRecording, StatePaused, StateReady, StateProcessing, StateComplete, StateError:
		return true
	}
	return false
}

// Turn is one conversation entry.
type Turn = conversation.Turn

// Conversation texts.
const (
	BatchGreeting     = "I have reviewed the audio and transcript for this dictation. How can I help you further?"
	ReprocessGreeting = "I have reviewed the audio and the new transcript. How can I help you further?"
	SingleGreeting    = "I have reviewed the audio and the transcript. How can I help you further?"

	AudioPlaceholder = "[Audio Message]"
	ErrorTurnPrefix  = "Sorry, I encountered an error: "
)

// Item is one recording job. Values returned by the Manager are copies;
// mutating them has no effect on the collection.
type Item struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Segments     []audio.Segment `json:"-"`
	Transcript   *string         `json:"transcript"`
	State        State           `json:"state"`
	Model        string          `json:"model"`
	PendingModel string          `json:"pendingModel"`
	LastError    string          `json:"error,omitempty"`
	Turns        []Turn          `json:"turns"`
	// AwaitingReply is true while a chat turn is in flight.
	AwaitingReply bool `json:"awaitingReply"`

	session conversation.Session
	// epoch changes whenever the item's audio or transcript is replaced, so
	// late results from before the change can be recognised and dropped.
	epoch uint64
}

// HasTranscript reports whether a transcript is set.
func (it *Item) HasTranscript() bool { return it.Transcript != nil }

// HasAudio reports whether any segment has been recorded or uploaded.
func (it *Item) HasAudio() bool { return len(it.Segments) > 0 }

// AudioBytes returns the total size of all segments.
func (it *Item) AudioBytes() int {
	n := 0
	for _, s := range it.Segments {
		n += s.Len()
	}
	return n
}

// shallow copies slices so the copy can be edited and swapped in whole.
// Segment bytes are never written after capture and are shared.
func (it *Item) shallow() *Item {
	c := *it
	c.Segments = slices.Clone(it.Segments)
	c.Turns = slices.Clone(it.Turns)
	if it.Transcript != nil {
		t := *it.Transcript
		c.Transcript = &t
	}
	return &c
}

// view returns a deep copy with no session.
func (it *Item) view() Item {
	c := *it.shallow()
	for i, s := range c.Segments {
		c.Segments[i] = s.Clone()
	}
	c.session = nil
	return c
}

func greetingTurn(transcript, greeting string) Turn {
	return Turn{Speaker: conversation.Assistant, Text: transcript + "\n\n" + greeting}
}

// transcribable reports whether a first transcription can start.
func (it *Item) transcribable() bool {
	if !it.HasAudio() || it.HasTranscript() {
		return false
	}
	switch it.State {
	case StateReady, StatePaused, StateError:
		return true
	}
	return false
}

// accepts new audio by capture or upload.
func (it *Item) acceptsAudio() bool {
	if it.HasTranscript() || it.AwaitingReply {
		return false
	}
	switch it.State {
	case StateIdle, StatePaused, StateReady, StateError:
		return true
	}
	return false
}
