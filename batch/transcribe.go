package batch

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/observability"
	"github.com/kbukum/scribe/transcription"
)

type job struct {
	id        string
	model     string
	payload   audio.Payload
	segments  int
	reprocess bool
	epoch     uint64
}

// begin moves it to processing and returns its job.
func begin(it *Item, model string, reprocess bool) job {
	it.State = StateProcessing
	it.LastError = ""
	if !reprocess {
		it.Model = model
		it.PendingModel = model
	}
	return job{
		id:        it.ID,
		model:     model,
		segments:  len(it.Segments),
		reprocess: reprocess,
		epoch:     it.epoch,
	}
}

// ProcessAll starts transcription of every item that has audio and no
// transcript and is ready, paused or failed. All selected items move to
// processing together; each result is applied on its own. It returns the
// number of items started. Use Wait to block until they finish.
func (m *Manager) ProcessAll(ctx context.Context) int {
	m.mu.Lock()
	var jobs []job
	segs := make([][]audio.Segment, 0)
	for i, it := range m.items {
		if !it.transcribable() {
			continue
		}
		next := it.shallow()
		jobs = append(jobs, begin(next, m.model, false))
		segs = append(segs, next.Segments)
		m.items[i] = next
	}
	m.mu.Unlock()

	if len(jobs) == 0 {
		return 0
	}
	m.notify()
	m.log.Info("batch transcription started", map[string]interface{}{logger.FieldCount: len(jobs)})

	for i := range jobs {
		jobs[i].payload = audio.Merge(segs[i]).Clean()
	}
	m.dispatch(ctx, jobs)
	return len(jobs)
}

// Transcribe starts the first transcription of one item with the global model.
func (m *Manager) Transcribe(ctx context.Context, id string) error {
	j, err := m.start(id, func(it *Item, global string) (job, error) {
		if !it.transcribable() {
			return job{}, errors.Conflict(fmt.Sprintf("cannot transcribe while item is %s", it.State))
		}
		return begin(it, global, false), nil
	})
	if err != nil {
		return err
	}
	m.dispatch(ctx, []job{j})
	return nil
}

// Reprocess re-transcribes a finished item with its pending model. It
// returns false without doing anything when the pending model equals the
// model that produced the transcript.
func (m *Manager) Reprocess(ctx context.Context, id string) (bool, error) {
	skipped := false
	j, err := m.start(id, func(it *Item, _ string) (job, error) {
		if !it.HasTranscript() || (it.State != StateComplete && it.State != StateError) {
			return job{}, errors.Conflict(fmt.Sprintf("cannot reprocess while item is %s", it.State))
		}
		if it.AwaitingReply {
			return job{}, errors.Conflict("a chat reply is in flight")
		}
		if it.PendingModel == it.Model {
			skipped = true
			return job{}, errSkip
		}
		return begin(it, it.PendingModel, true), nil
	})
	if skipped {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	m.dispatch(ctx, []job{j})
	return true, nil
}

// Retry re-runs a failed transcription: the first transcription with the
// global model, or a reprocess with the pending model when a transcript
// exists. Unlike Reprocess it does not require a different model.
func (m *Manager) Retry(ctx context.Context, id string) error {
	j, err := m.start(id, func(it *Item, global string) (job, error) {
		if it.State != StateError {
			return job{}, errors.Conflict(fmt.Sprintf("cannot retry while item is %s", it.State))
		}
		if it.AwaitingReply {
			return job{}, errors.Conflict("a chat reply is in flight")
		}
		if it.HasTranscript() {
			return begin(it, it.PendingModel, true), nil
		}
		if !it.HasAudio() {
			return job{}, errors.Conflict("item has no audio")
		}
		return begin(it, global, false), nil
	})
	if err != nil {
		return err
	}
	m.dispatch(ctx, []job{j})
	return nil
}

var errSkip = errors.Conflict("skip")

func (m *Manager) start(id string, fn func(it *Item, global string) (job, error)) (job, error) {
	var (
		j    job
		segs []audio.Segment
	)
	m.mu.Lock()
	global := m.model
	m.mu.Unlock()

	err := m.update(id, func(it *Item) error {
		var err error
		j, err = fn(it, global)
		segs = it.Segments
		return err
	})
	if err != nil {
		return job{}, err
	}
	j.payload = audio.Merge(segs).Clean()
	return j, nil
}

// dispatch runs jobs in the background, at most MaxConcurrent at a time.
// The calls are detached from ctx's cancellation.
func (m *Manager) dispatch(ctx context.Context, jobs []job) {
	ctx = context.WithoutCancel(ctx)
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		var g errgroup.Group
		g.SetLimit(m.cfg.MaxConcurrent)
		for _, j := range jobs {
			g.Go(func() error {
				m.run(ctx, j)
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (m *Manager) run(ctx context.Context, j job) {
	ctx, span := observability.StartSpan(ctx, observability.SpanTranscribe,
		attribute.String(observability.AttrItemID, j.id),
		attribute.String(observability.AttrModel, j.model),
		attribute.Int(observability.AttrSegments, j.segments),
	)
	started := time.Now()

	var (
		text string
		err  error
	)
	if m.deps.Transcriber == nil {
		err = errors.ProviderError(transcription.Service, fmt.Errorf("no transcription provider configured"))
	} else {
		text, err = m.deps.Transcriber.Transcribe(ctx, j.payload, j.model)
	}
	if err == nil && text == "" {
		err = errors.ProviderError(transcription.Service, transcription.ErrEmptyResult)
	}

	elapsed := time.Since(started)
	observability.EndSpan(span, err)
	outcome := observability.OutcomeOK
	if err != nil {
		outcome = observability.OutcomeError
	}
	m.deps.Metrics.RecordTranscription(ctx, j.model, outcome, elapsed)

	fields := logger.MergeWithDuration(map[string]interface{}{
		logger.FieldItemID: j.id, logger.FieldModel: j.model,
	}, elapsed)
	m.apply(j, text, err, fields)
}

func (m *Manager) apply(j job, text string, callErr error, fields map[string]interface{}) {
	err := m.update(j.id, func(it *Item) error {
		if it.epoch != j.epoch || it.State != StateProcessing {
			return errSkip
		}
		if callErr != nil {
			it.State = StateError
			it.LastError = errors.Message(callErr)
			return nil
		}
		greeting := m.cfg.Greeting
		if j.reprocess {
			greeting = ReprocessGreeting
		}
		it.Transcript = &text
		it.Model = j.model
		it.State = StateComplete
		it.session = nil
		it.Turns = []Turn{greetingTurn(text, greeting)}
		it.epoch++
		return nil
	})
	switch {
	case err != nil:
		m.log.Debug("transcription result dropped", logger.MergeWithError(fields, err))
	case callErr != nil:
		m.log.Warn("transcription failed", logger.MergeWithError(fields, callErr))
	default:
		m.log.Info("transcription complete", fields)
	}
}
