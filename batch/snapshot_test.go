package batch

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/conversation"
	"github.com/kbukum/scribe/store"
)

func sameItem(t *testing.T, got, want Item) {
	t.Helper()
	if got.ID != want.ID || got.Name != want.Name || got.State != want.State ||
		got.Model != want.Model || got.PendingModel != want.PendingModel || got.LastError != want.LastError {
		t.Errorf("scalar fields differ:\n got %+v\nwant %+v", got, want)
	}
	if (got.Transcript == nil) != (want.Transcript == nil) ||
		(got.Transcript != nil && *got.Transcript != *want.Transcript) {
		t.Errorf("transcript differs: %v vs %v", got.Transcript, want.Transcript)
	}
	if len(got.Segments) != len(want.Segments) {
		t.Fatalf("segment count %d, want %d", len(got.Segments), len(want.Segments))
	}
	for i := range got.Segments {
		if !bytes.Equal(got.Segments[i].Data, want.Segments[i].Data) || got.Segments[i].MIMEType != want.Segments[i].MIMEType {
			t.Errorf("segment %d differs", i)
		}
	}
	if len(got.Turns) != len(want.Turns) {
		t.Fatalf("turn count %d, want %d", len(got.Turns), len(want.Turns))
	}
	for i := range got.Turns {
		if got.Turns[i] != want.Turns[i] {
			t.Errorf("turn %d differs: %+v vs %+v", i, got.Turns[i], want.Turns[i])
		}
	}
	if got.AwaitingReply || got.session != nil {
		t.Error("expected no session and no reply in flight after decode")
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_ = f.add(t)
	paused := f.add(t)
	_ = f.m.StartCapture(ctx, paused)
	_ = f.m.PauseCapture(ctx, paused)
	done := f.completed(t, "A")
	_, _ = f.m.SendTurn(ctx, done, "q", nil)
	_ = f.m.Rename(done, "Standup notes")

	binary := f.add(t)
	raw := []byte{0x00, 0xff, 0x1a, 0x45, 0xdf, 0xa3, 0x00}
	_ = f.m.Upload(binary, raw, "audio/webm;codecs=opus")

	items := f.m.Items()
	snap := Encode(items, f.m.Model())

	// survives JSON, as every store writes it
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}

	got, err := Decode(decoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != len(items) {
		t.Fatalf("expected %d items, got %d", len(items), len(got))
	}
	for i := range items {
		sameItem(t, got[i], items[i])
	}
}

func TestSnapshot_SettlesLiveStates(t *testing.T) {
	text := "hello"
	seg := []SnapshotSegment{{Data: "AQID", MIMEType: "audio/webm"}}
	snap := Snapshot{Version: SnapshotVersion, Items: []SnapshotItem{
		{ID: "1", State: StateRecording, Segments: seg},
		{ID: "2", State: StateProcessing, Segments: seg},
		{ID: "3", State: StateProcessing, Segments: seg, Transcript: &text},
		{ID: "4", State: StateRecording},
	}}
	items, err := Decode(snap)
	if err != nil {
		t.Fatal(err)
	}
	want := []State{StatePaused, StateReady, StateComplete, StateIdle}
	for i, it := range items {
		if it.State != want[i] {
			t.Errorf("item %s: state %s, want %s", it.ID, it.State, want[i])
		}
	}
}

func TestSnapshot_DecodeCorrupt(t *testing.T) {
	valid := SnapshotItem{ID: "1", State: StateReady, Segments: []SnapshotSegment{{Data: "AQID"}}}
	tests := []struct {
		name string
		snap Snapshot
	}{
		{"unknown version", Snapshot{Version: 2, Items: []SnapshotItem{valid}}},
		{"missing version", Snapshot{Items: []SnapshotItem{valid}}},
		{"bad base64", Snapshot{Version: 1, Items: []SnapshotItem{{ID: "1", State: StateReady, Segments: []SnapshotSegment{{Data: "!!"}}}}}},
		{"unknown state", Snapshot{Version: 1, Items: []SnapshotItem{{ID: "1", State: "lost"}}}},
		{"missing id", Snapshot{Version: 1, Items: []SnapshotItem{{State: StateIdle}}}},
		{"unknown speaker", Snapshot{Version: 1, Items: []SnapshotItem{{ID: "1", State: StateIdle, Turns: []Turn{{Speaker: "robot"}}}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.snap)
			if !stderrors.Is(err, store.ErrCorrupt) {
				t.Errorf("expected ErrCorrupt, got %v", err)
			}
		})
	}
}

func TestSnapshot_SegmentBytes(t *testing.T) {
	for _, data := range [][]byte{{}, {0}, []byte("abc"), bytes.Repeat([]byte{0xfe, 0x01}, 1000)} {
		items := []Item{{ID: "x", State: StateReady, Segments: []audio.Segment{{Data: data, MIMEType: "audio/ogg"}},
			Turns: []Turn{{Speaker: conversation.User, Text: "t"}}}}
		got, err := Decode(Encode(items, ""))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got[0].Segments[0].Data, data) {
			t.Errorf("segment of %d bytes changed", len(data))
		}
	}
}
