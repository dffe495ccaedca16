package batch

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/conversation"
	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/observability"
	"github.com/kbukum/scribe/transcription"
)

// Config holds manager settings.
type Config struct {
	// Model is the initial global transcription model.
	Model string `yaml:"default" mapstructure:"default" validate:"required"`
	// Models restricts SetModel and SelectModel when non-empty.
	Models []string `yaml:"available" mapstructure:"available"`
	// MaxConcurrent bounds concurrent transcriptions started by ProcessAll.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent" validate:"min=0"`
	// MaxItems caps the collection size; 0 means unlimited.
	MaxItems int `yaml:"-" mapstructure:"-"`
	// Greeting follows the transcript in the first assistant turn.
	Greeting string `yaml:"-" mapstructure:"-"`
}

// ApplyDefaults fills empty fields.
func (c *Config) ApplyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.Greeting == "" {
		c.Greeting = BatchGreeting
	}
}

// Deps are the manager's collaborators. Capture may be nil when only
// uploads are used.
type Deps struct {
	Capture      audio.Capture
	Transcriber  transcription.Gateway
	Conversation conversation.Gateway
	Metrics      *observability.Metrics
	Logger       *logger.Logger
}

// Manager owns the item collection. All item mutations happen under mu as
// whole-item replacements; gateway and store calls run outside it. Capture
// calls are serialised by captureMu, which is always taken before mu.
type Manager struct {
	cfg  Config
	deps Deps
	log  *logger.Logger

	captureMu sync.Mutex

	mu     sync.Mutex
	items  []*Item
	model  string
	active string // id of the recording item, "" when none

	subMu  sync.Mutex
	subs   map[int]func()
	nextID int

	inflight sync.WaitGroup
}

// New creates an empty Manager.
func New(cfg Config, deps Deps) *Manager {
	cfg.ApplyDefaults()
	log := deps.Logger
	if log == nil {
		log = logger.Get("batch")
	}
	return &Manager{
		cfg:   cfg,
		deps:  deps,
		log:   log,
		model: cfg.Model,
		subs:  make(map[int]func()),
	}
}

// Subscribe registers fn to run after every change. fn runs outside the
// manager's lock and may read from the manager. The returned func removes
// the subscription.
func (m *Manager) Subscribe(fn func()) func() {
	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.subMu.Unlock()
	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Manager) notify() {
	m.subMu.Lock()
	fns := make([]func(), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Wait blocks until every background transcription has been applied.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

func (m *Manager) indexOf(id string) int {
	return slices.IndexFunc(m.items, func(it *Item) bool { return it.ID == id })
}

// update applies fn to a copy of the item and swaps the copy in when fn
// succeeds. Subscribers are notified after the lock is released.
func (m *Manager) update(id string, fn func(*Item) error) error {
	m.mu.Lock()
	i := m.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return errors.NotFound("item", id)
	}
	next := m.items[i].shallow()
	if err := fn(next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.items[i] = next
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *Manager) newItem() *Item {
	return &Item{
		ID:           uuid.NewString(),
		Name:         fmt.Sprintf("Audio #%d", len(m.items)+1),
		State:        StateIdle,
		Model:        m.model,
		PendingModel: m.model,
	}
}

// Add appends a new idle item and returns it.
func (m *Manager) Add() (Item, error) {
	m.mu.Lock()
	if m.cfg.MaxItems > 0 && len(m.items) >= m.cfg.MaxItems {
		m.mu.Unlock()
		return Item{}, errors.Conflict(fmt.Sprintf("at most %d items are allowed", m.cfg.MaxItems))
	}
	it := m.newItem()
	m.items = append(m.items, it)
	v := it.view()
	m.mu.Unlock()

	m.log.Debug("item added", logger.ItemFields(v.ID, string(v.State)))
	m.notify()
	return v, nil
}

// Rename sets an item's display name. Names need not be unique.
func (m *Manager) Rename(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.InvalidInput("name", "name must not be blank")
	}
	return m.update(id, func(it *Item) error {
		it.Name = name
		return nil
	})
}

// Remove deletes an item, releasing the capture device if it was recording.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()

	m.mu.Lock()
	i := m.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return errors.NotFound("item", id)
	}
	wasActive := m.active == id
	m.items = slices.Delete(m.items, i, i+1)
	if wasActive {
		m.active = ""
	}
	m.mu.Unlock()

	if wasActive {
		m.releaseDevice(ctx)
	}
	m.log.Debug("item removed", logger.ItemFields(id, ""))
	m.notify()
	return nil
}

// RemoveAll clears the collection. An attached Persister deletes the stored
// snapshot on its next write.
func (m *Manager) RemoveAll(ctx context.Context) {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()

	m.mu.Lock()
	wasRecording := m.active != ""
	m.items = nil
	m.active = ""
	m.mu.Unlock()

	if wasRecording {
		m.releaseDevice(ctx)
	}
	m.log.Info("all items removed")
	m.notify()
}

// releaseDevice stops the capture and discards the segment. Caller holds captureMu.
func (m *Manager) releaseDevice(ctx context.Context) {
	if m.deps.Capture == nil {
		return
	}
	if _, err := m.deps.Capture.Stop(ctx); err != nil {
		m.log.Warn("failed to release capture device", logger.ErrorFields("stop", err))
	}
}

// Model returns the global transcription model.
func (m *Manager) Model() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// Models returns the selectable models; empty means any model is accepted.
func (m *Manager) Models() []string {
	return slices.Clone(m.cfg.Models)
}

func (m *Manager) checkModel(model string) error {
	if strings.TrimSpace(model) == "" {
		return errors.MissingField("model")
	}
	if len(m.cfg.Models) > 0 && !slices.Contains(m.cfg.Models, model) {
		return errors.InvalidInput("model", fmt.Sprintf("unknown model %q", model))
	}
	return nil
}

// SetModel changes the global model. Items with no transcript that are not
// being transcribed follow the new model.
func (m *Manager) SetModel(model string) error {
	if err := m.checkModel(model); err != nil {
		return err
	}
	m.mu.Lock()
	m.model = model
	for i, it := range m.items {
		if it.HasTranscript() || it.State == StateProcessing {
			continue
		}
		next := it.shallow()
		next.Model = model
		next.PendingModel = model
		m.items[i] = next
	}
	m.mu.Unlock()
	m.log.Info("global model changed", map[string]interface{}{logger.FieldModel: model})
	m.notify()
	return nil
}

// SelectModel sets the candidate model for an item's next reprocess.
func (m *Manager) SelectModel(id, model string) error {
	if err := m.checkModel(model); err != nil {
		return err
	}
	return m.update(id, func(it *Item) error {
		it.PendingModel = model
		return nil
	})
}

// Items returns deep copies of all items in collection order.
func (m *Manager) Items() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Item, len(m.items))
	for i, it := range m.items {
		out[i] = it.view()
	}
	return out
}

// Item returns a deep copy of one item.
func (m *Manager) Item(id string) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(id)
	if i < 0 {
		return Item{}, errors.NotFound("item", id)
	}
	return m.items[i].view(), nil
}

// Len returns the number of items.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Recording returns the id of the item holding the capture device, or "".
func (m *Manager) Recording() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// restore replaces the collection with loaded items.
func (m *Manager) restore(items []Item, model string) {
	m.mu.Lock()
	m.items = make([]*Item, len(items))
	for i := range items {
		it := items[i]
		m.items[i] = &it
	}
	if model != "" && m.checkModel(model) == nil {
		m.model = model
	}
	m.active = ""
	m.mu.Unlock()
	m.notify()
}
