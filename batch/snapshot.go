package batch

import (
	"encoding/base64"
	"fmt"

	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/conversation"
	"github.com/kbukum/scribe/store"
)

// SnapshotVersion is the schema version written by Encode.
const SnapshotVersion = 1

// Snapshot is the persisted form of a collection.
type Snapshot struct {
	Version int            `json:"version"`
	Model   string         `json:"model,omitempty"`
	Items   []SnapshotItem `json:"items"`
}

// SnapshotSegment is a base64-encoded audio segment.
type SnapshotSegment struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

// SnapshotItem is the persisted form of an Item.
type SnapshotItem struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Segments     []SnapshotSegment `json:"audioSegments"`
	Transcript   *string           `json:"transcript"`
	State        State             `json:"state"`
	Model        string            `json:"transcriptionModel"`
	PendingModel string            `json:"pendingReprocessModel"`
	Error        string            `json:"error,omitempty"`
	Turns        []Turn            `json:"conversationTurns"`
}

// Encode converts items to a snapshot. Sessions and in-flight flags are not
// persisted.
func Encode(items []Item, model string) Snapshot {
	snap := Snapshot{Version: SnapshotVersion, Model: model, Items: make([]SnapshotItem, len(items))}
	for i, it := range items {
		segs := make([]SnapshotSegment, len(it.Segments))
		for j, s := range it.Segments {
			segs[j] = SnapshotSegment{Data: base64.StdEncoding.EncodeToString(s.Data), MIMEType: s.MIMEType}
		}
		var transcript *string
		if it.Transcript != nil {
			t := *it.Transcript
			transcript = &t
		}
		snap.Items[i] = SnapshotItem{
			ID:           it.ID,
			Name:         it.Name,
			Segments:     segs,
			Transcript:   transcript,
			State:        it.State,
			Model:        it.Model,
			PendingModel: it.PendingModel,
			Error:        it.LastError,
			Turns:        append([]Turn{}, it.Turns...),
		}
	}
	return snap
}

// Decode rebuilds items from a snapshot. Any malformed field fails the whole
// snapshot with an error wrapping store.ErrCorrupt.
//
// States that only exist while a call or the device is live are settled:
// recording becomes paused, and processing becomes complete when a
// transcript exists or ready otherwise. Items without audio become idle.
func Decode(snap Snapshot) ([]Item, error) {
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", store.ErrCorrupt, snap.Version)
	}
	items := make([]Item, len(snap.Items))
	for i, si := range snap.Items {
		if si.ID == "" {
			return nil, fmt.Errorf("%w: item %d has no id", store.ErrCorrupt, i)
		}
		if !si.State.Valid() {
			return nil, fmt.Errorf("%w: item %s has unknown state %q", store.ErrCorrupt, si.ID, si.State)
		}
		segs := make([]audio.Segment, len(si.Segments))
		for j, s := range si.Segments {
			data, err := base64.StdEncoding.DecodeString(s.Data)
			if err != nil {
				return nil, fmt.Errorf("%w: item %s segment %d: %v", store.ErrCorrupt, si.ID, j, err)
			}
			segs[j] = audio.Segment{Data: data, MIMEType: s.MIMEType}
		}
		for j, t := range si.Turns {
			if t.Speaker != conversation.User && t.Speaker != conversation.Assistant {
				return nil, fmt.Errorf("%w: item %s turn %d has unknown speaker %q", store.ErrCorrupt, si.ID, j, t.Speaker)
			}
		}

		it := Item{
			ID:           si.ID,
			Name:         si.Name,
			Segments:     segs,
			State:        si.State,
			Model:        si.Model,
			PendingModel: si.PendingModel,
			LastError:    si.Error,
			Turns:        append([]Turn(nil), si.Turns...),
		}
		if si.Transcript != nil {
			t := *si.Transcript
			it.Transcript = &t
		}
		settle(&it)
		items[i] = it
	}
	return items, nil
}

func settle(it *Item) {
	switch it.State {
	case StateRecording:
		it.State = StatePaused
	case StateProcessing:
		if it.HasTranscript() {
			it.State = StateComplete
		} else {
			it.State = StateReady
		}
	}
	if !it.HasAudio() && !it.HasTranscript() {
		it.State = StateIdle
	}
}
