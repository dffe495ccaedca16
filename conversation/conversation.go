// Package conversation holds follow-up chat sessions about a transcribed
// recording. A session is seeded with the recording, its transcript and any
// earlier turns, then answers one message at a time.
package conversation

import (
	"context"
	"strings"

	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/provider"
)

// Service is the service label used in provider errors.
const Service = "conversation"

// Speaker identifies who produced a turn.
type Speaker string

const (
	User      Speaker = "user"
	Assistant Speaker = "assistant"
)

// Turn is one chat message.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Seed is everything a new session needs to pick up an existing conversation.
type Seed struct {
	Audio      audio.Payload
	Transcript string
	Model      string
	// History excludes the greeting turn that opens every conversation.
	History []Turn
}

// Message is one user turn. Audio is optional; Instruction accompanies a
// spoken follow-up that has no typed text.
type Message struct {
	Text        string
	Audio       *audio.Payload
	Instruction string
}

// Session answers messages in the context of its seed and previous replies.
type Session interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Gateway opens sessions.
type Gateway interface {
	CreateSession(ctx context.Context, seed Seed) (Session, error)
}

// Provider is a named, health-checkable Gateway.
type Provider interface {
	provider.Provider
	Gateway
}

// Prompt texts shared by all backends.
const (
	SystemInstruction = "You are a helpful AI assistant. The user has provided an audio and you have transcribed it. " +
		"Now, answer the user's follow-up questions based on the content of the audio and the transcript."
	AudioProvided      = "This is the audio I provided."
	TranscriptPreamble = "This is the transcript you requested:\n\n"
	SpokenFollowUp     = "This is a spoken follow-up question. Please listen to the audio and answer it based on " +
		"our previous conversation about the original audio and transcript."
)

// Prelude returns the turns every session starts from: the user handing
// over the audio, the assistant returning the transcript, then History.
func Prelude(seed Seed) []Turn {
	turns := make([]Turn, 0, len(seed.History)+2)
	turns = append(turns,
		Turn{Speaker: User, Text: AudioProvided},
		Turn{Speaker: Assistant, Text: TranscriptPreamble + seed.Transcript},
	)
	return append(turns, seed.History...)
}

// UserText renders a message for text-only backends. spoken is the
// transcription of msg.Audio, or "" when there is none.
func UserText(msg Message, spoken string) string {
	text := strings.TrimSpace(msg.Text)
	spoken = strings.TrimSpace(spoken)
	switch {
	case spoken == "":
		return text
	case text == "":
		parts := []string{}
		if msg.Instruction != "" {
			parts = append(parts, msg.Instruction)
		}
		parts = append(parts, "Spoken question: "+spoken)
		return strings.Join(parts, "\n\n")
	default:
		return text + "\n\nSpoken addition: " + spoken
	}
}
