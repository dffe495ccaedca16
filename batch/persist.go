package batch

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/bep/debounce"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/observability"
	"github.com/kbukum/scribe/provider"
	"github.com/kbukum/scribe/resilience"
	"github.com/kbukum/scribe/store"
)

// Store persists snapshots by key.
type Store = provider.ContextStore[Snapshot]

// PersistConfig holds persister settings.
type PersistConfig struct {
	// Debounce is the quiet period before a change is written.
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
	// TTL expires stored snapshots; 0 keeps them forever.
	TTL   time.Duration     `yaml:"ttl" mapstructure:"ttl"`
	Retry resilience.Policy `yaml:"retry" mapstructure:"retry"`
}

// ApplyDefaults fills empty fields.
func (c *PersistConfig) ApplyDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = time.Second
	}
}

// Persister writes a Manager's collection to a Store. Every change re-arms
// one quiet-period timer; when it fires the current collection is saved.
// Nothing is written until Load has run. Write failures are logged and
// never reach the manager's callers.
type Persister struct {
	m     *Manager
	store Store
	key   string
	cfg   PersistConfig
	retry resilience.RetryConfig
	log   *logger.Logger

	debounced func(func())
	unsub     func()

	writeMu sync.Mutex
	stateMu sync.Mutex
	loaded  bool
	closed  bool
}

// NewPersister creates a persister for m under key.
func NewPersister(m *Manager, s Store, key string, cfg PersistConfig) *Persister {
	cfg.ApplyDefaults()
	p := &Persister{
		m:         m,
		store:     s,
		key:       key,
		cfg:       cfg,
		retry:     cfg.Retry.Config(),
		log:       logger.Get("persist").WithFields(map[string]interface{}{logger.FieldKey: key}),
		debounced: debounce.New(cfg.Debounce),
	}
	p.retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		p.log.Warn("snapshot save failed, retrying", map[string]interface{}{
			"attempt": attempt, "backoff_ms": backoff.Milliseconds(), logger.FieldError: err.Error(),
		})
	}
	return p
}

// Load restores the collection from the store and enables writes. A missing
// snapshot leaves the collection empty. A corrupt snapshot is deleted and
// reported as CORRUPT_SNAPSHOT; a store failure is reported as STORE_ERROR.
// In both cases the manager starts empty and persistence stays enabled.
func (p *Persister) Load(ctx context.Context) error {
	defer p.enable()

	ctx, span := observability.StartSpan(ctx, observability.SpanStoreLoad,
		attribute.String(observability.AttrKey, p.key))
	snap, err := p.store.Load(ctx, p.key)
	observability.EndSpan(span, err)

	if err != nil {
		if stderrors.Is(err, store.ErrCorrupt) {
			return p.discard(ctx, err)
		}
		p.log.Error("failed to load snapshot", logger.ErrorFields("load", err))
		return errors.StoreError(err)
	}
	if snap == nil {
		p.log.Debug("no snapshot stored")
		return nil
	}

	items, err := Decode(*snap)
	if err != nil {
		return p.discard(ctx, err)
	}
	p.m.restore(items, snap.Model)
	p.log.Info("snapshot loaded", map[string]interface{}{logger.FieldCount: len(items)})
	return nil
}

func (p *Persister) discard(ctx context.Context, cause error) error {
	p.log.Warn("discarding corrupt snapshot", logger.ErrorFields("decode", cause))
	if err := p.store.Delete(ctx, p.key); err != nil {
		p.log.Error("failed to delete corrupt snapshot", logger.ErrorFields("delete", err))
	}
	return errors.CorruptSnapshot(cause)
}

func (p *Persister) enable() {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.loaded {
		return
	}
	p.loaded = true
	p.unsub = p.m.Subscribe(p.schedule)
}

func (p *Persister) schedule() {
	p.debounced(func() {
		_ = p.write(context.Background())
	})
}

func (p *Persister) active() bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.loaded && !p.closed
}

// write saves the current collection, or deletes the key when the
// collection is empty.
func (p *Persister) write(ctx context.Context) error {
	if !p.active() {
		return nil
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	items := p.m.Items()
	snap := Encode(items, p.m.Model())

	ctx, span := observability.StartSpan(ctx, observability.SpanStoreSave,
		attribute.String(observability.AttrKey, p.key))
	err := resilience.RetryFunc(ctx, p.retry, func() error {
		if len(snap.Items) == 0 {
			return p.store.Delete(ctx, p.key)
		}
		return p.store.Save(ctx, p.key, &snap, p.cfg.TTL)
	})
	observability.EndSpan(span, err)

	if err != nil {
		p.m.deps.Metrics.RecordStoreSave(ctx, observability.OutcomeError)
		p.log.Error("changes may not be saved", logger.ErrorFields("save", err))
		return errors.StoreError(err)
	}
	p.m.deps.Metrics.RecordStoreSave(ctx, observability.OutcomeOK)
	p.log.Debug("snapshot saved", map[string]interface{}{logger.FieldCount: len(snap.Items)})
	return nil
}

// Flush writes the current collection now.
func (p *Persister) Flush(ctx context.Context) error {
	return p.write(ctx)
}

// Close flushes and stops further writes.
func (p *Persister) Close(ctx context.Context) error {
	err := p.write(ctx)
	p.stateMu.Lock()
	p.closed = true
	unsub := p.unsub
	p.stateMu.Unlock()
	if unsub != nil {
		unsub()
	}
	return err
}
