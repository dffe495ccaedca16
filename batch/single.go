package batch

import (
	"context"

	"github.com/kbukum/scribe/logger"
)

// Single is a Manager holding exactly one item, created on demand.
type Single struct {
	*Manager
}

// NewSingle creates a single-item manager.
func NewSingle(cfg Config, deps Deps) *Single {
	cfg.MaxItems = 1
	if cfg.Greeting == "" {
		cfg.Greeting = SingleGreeting
	}
	if deps.Logger == nil {
		deps.Logger = logger.Get("single")
	}
	return &Single{Manager: New(cfg, deps)}
}

// ID returns the id of the item, creating it when the collection is empty.
func (s *Single) ID() string {
	for {
		s.mu.Lock()
		if len(s.items) > 0 {
			id := s.items[0].ID
			s.mu.Unlock()
			return id
		}
		s.mu.Unlock()

		if it, err := s.Add(); err == nil {
			return it.ID
		}
	}
}

// Current returns a copy of the item.
func (s *Single) Current() Item {
	for {
		if it, err := s.Item(s.ID()); err == nil {
			return it
		}
	}
}

// Reset replaces the item with a fresh idle one, releasing the capture
// device if it was recording.
func (s *Single) Reset(ctx context.Context) Item {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()

	s.mu.Lock()
	wasRecording := s.active != ""
	s.items = nil
	s.active = ""
	it := s.newItem()
	s.items = []*Item{it}
	v := it.view()
	s.mu.Unlock()

	if wasRecording {
		s.releaseDevice(ctx)
	}
	s.log.Info("single item reset", logger.ItemFields(v.ID, string(v.State)))
	s.notify()
	return v
}
