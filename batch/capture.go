package batch

import (
	"context"
	"fmt"

	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/logger"
)

var errNoCapture = errors.HardwareUnavailable(fmt.Errorf("no capture device configured"))

// StartCapture begins recording into an item. An item already holding audio
// but no transcript keeps its segments and appends new ones. Any other item
// that is recording is paused first and keeps its segment.
func (m *Manager) StartCapture(ctx context.Context, id string) error {
	return m.acquire(ctx, id, "start", func(it *Item) bool { return it.acceptsAudio() && it.State != StatePaused })
}

// ResumeCapture continues recording a paused item.
func (m *Manager) ResumeCapture(ctx context.Context, id string) error {
	return m.acquire(ctx, id, "resume", func(it *Item) bool { return it.State == StatePaused && !it.HasTranscript() })
}

func (m *Manager) acquire(ctx context.Context, id, op string, allowed func(*Item) bool) error {
	if m.deps.Capture == nil {
		return errNoCapture
	}
	m.captureMu.Lock()
	defer m.captureMu.Unlock()

	m.mu.Lock()
	i := m.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return errors.NotFound("item", id)
	}
	it := m.items[i]
	if !allowed(it) {
		state := it.State
		m.mu.Unlock()
		return errors.Conflict(fmt.Sprintf("cannot %s capture while item is %s", op, state))
	}
	other := m.active
	m.mu.Unlock()

	if other != "" && other != id {
		m.forcePause(ctx, other)
	}

	var err error
	if op == "resume" {
		err = m.deps.Capture.Resume(ctx)
	} else {
		err = m.deps.Capture.Start(ctx)
	}
	if err != nil {
		m.log.Warn("capture device unavailable", logger.MergeWithError(logger.ItemFields(id, ""), err))
		if errors.HasCode(err, errors.ErrCodeHardwareUnavailable) {
			return err
		}
		return errors.HardwareUnavailable(err)
	}

	err = m.update(id, func(it *Item) error {
		if !allowed(it) {
			return errors.Conflict(fmt.Sprintf("cannot %s capture while item is %s", op, it.State))
		}
		it.State = StateRecording
		it.LastError = ""
		return nil
	})
	if err != nil {
		// removed or moved on while the device was starting
		m.releaseDevice(ctx)
		return err
	}
	m.mu.Lock()
	m.active = id
	m.mu.Unlock()
	m.log.Debug("capture started", logger.ItemFields(id, string(StateRecording)))
	return nil
}

// forcePause pauses the item holding the device. Caller holds captureMu.
func (m *Manager) forcePause(ctx context.Context, id string) {
	seg, err := m.deps.Capture.Pause(ctx)
	if err != nil {
		m.log.Warn("failed to pause previous recording", logger.MergeWithError(logger.ItemFields(id, ""), err))
	}
	m.mu.Lock()
	if m.active == id {
		m.active = ""
	}
	m.mu.Unlock()
	_ = m.update(id, func(it *Item) error {
		flush(it, seg, StatePaused)
		return nil
	})
	m.log.Info("recording paused for another item", logger.ItemFields(id, string(StatePaused)))
}

// flush appends seg and moves the item to target. An item that ends up with
// no audio at all goes back to idle.
func flush(it *Item, seg audio.Segment, target State) {
	if seg.Len() > 0 {
		it.Segments = append(it.Segments, seg)
	}
	it.State = target
	if !it.HasAudio() {
		it.State = StateIdle
	}
}

// PauseCapture ends the current segment and releases the device.
func (m *Manager) PauseCapture(ctx context.Context, id string) error {
	return m.release(ctx, id, StatePaused)
}

// StopCapture ends recording; the item becomes ready for transcription. A
// paused item is moved to ready without touching the device.
func (m *Manager) StopCapture(ctx context.Context, id string) error {
	return m.release(ctx, id, StateReady)
}

func (m *Manager) release(ctx context.Context, id string, target State) error {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()

	it, err := m.Item(id)
	if err != nil {
		return err
	}
	if target == StateReady && it.State == StatePaused {
		return m.update(id, func(it *Item) error {
			if it.State != StatePaused {
				return errors.Conflict(fmt.Sprintf("cannot stop capture while item is %s", it.State))
			}
			flush(it, audio.Segment{}, StateReady)
			return nil
		})
	}
	if it.State != StateRecording || m.Recording() != id {
		return errors.Conflict(fmt.Sprintf("item is %s, not recording", it.State))
	}

	var seg audio.Segment
	if target == StatePaused {
		seg, err = m.deps.Capture.Pause(ctx)
	} else {
		seg, err = m.deps.Capture.Stop(ctx)
	}
	m.mu.Lock()
	m.active = ""
	m.mu.Unlock()

	if uerr := m.update(id, func(it *Item) error {
		flush(it, seg, target)
		return nil
	}); uerr != nil {
		return uerr
	}
	if err != nil {
		m.log.Warn("capture ended with error", logger.MergeWithError(logger.ItemFields(id, string(target)), err))
		return errors.HardwareUnavailable(err)
	}
	m.log.Debug("capture segment flushed", map[string]interface{}{
		logger.FieldItemID: id, logger.FieldState: string(target), "bytes": seg.Len(),
	})
	return nil
}

// Upload replaces an item's audio with one segment from a file. An empty
// mimeType is sniffed from the data.
func (m *Manager) Upload(id string, data []byte, mimeType string) error {
	if len(data) == 0 {
		return errors.InvalidInput("file", "file is empty")
	}
	if mimeType == "" {
		detected, ok := audio.DetectMIMEType(data)
		if !ok {
			return errors.InvalidInput("file", "file is not audio")
		}
		mimeType = detected
	}

	seg := audio.Segment{Data: append([]byte(nil), data...), MIMEType: mimeType}
	return m.update(id, func(it *Item) error {
		if it.State == StateRecording || !it.acceptsAudio() {
			return errors.Conflict(fmt.Sprintf("cannot upload while item is %s", it.State))
		}
		it.Segments = []audio.Segment{seg}
		it.State = StateReady
		it.LastError = ""
		it.epoch++
		return nil
	})
}
