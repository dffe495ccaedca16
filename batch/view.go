package batch

import (
	"strings"

	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/errors"
)

// Download is an item's merged audio with a suggested file name.
type Download struct {
	audio.Payload
	FileName string
}

// MergedAudio returns the item's segments concatenated in order.
func (m *Manager) MergedAudio(id string) (Download, error) {
	it, err := m.Item(id)
	if err != nil {
		return Download{}, err
	}
	if !it.HasAudio() {
		return Download{}, errors.Conflict("item has no audio")
	}
	p := audio.Merge(it.Segments)
	return Download{Payload: p, FileName: audio.FileName(it.Name, p.MIMEType)}, nil
}

// TranscriptsText joins every transcript under a "--- name ---" header,
// in collection order.
func (m *Manager) TranscriptsText() string {
	var blocks []string
	for _, it := range m.Items() {
		if it.Transcript == nil {
			continue
		}
		blocks = append(blocks, "--- "+it.Name+" ---\n\n"+*it.Transcript)
	}
	return strings.Join(blocks, "\n\n")
}

// Summary counts items for enabling bulk actions.
type Summary struct {
	Total       int `json:"total"`
	Recording   int `json:"recording"`
	Processing  int `json:"processing"`
	Processable int `json:"processable"`
	WithResults int `json:"withResults"`
	// AllProcessed is true when at least one item has a transcript, nothing is
	// being transcribed and every item with audio has a transcript.
	AllProcessed bool `json:"allProcessed"`
}

// Summary returns counts over the current collection.
func (m *Manager) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{Total: len(m.items)}
	pending := false
	for _, it := range m.items {
		switch it.State {
		case StateRecording:
			s.Recording++
		case StateProcessing:
			s.Processing++
		}
		if it.transcribable() {
			s.Processable++
		}
		if it.HasTranscript() {
			s.WithResults++
		} else if it.HasAudio() {
			pending = true
		}
	}
	s.AllProcessed = s.WithResults > 0 && s.Processable == 0 && s.Processing == 0 && !pending
	return s
}
