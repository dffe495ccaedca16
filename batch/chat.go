package batch

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/conversation"
	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/observability"
)

var errSessionUnavailable = errors.Conflict("Could not initialize chat session.")

// SendTurn sends a follow-up message about an item's audio and transcript
// and waits for the reply. It returns false without doing anything when the
// item is busy (awaiting a reply or processing) or the message is empty.
//
// The user turn is appended before the call. The reply, or an error text
// when the call fails, is appended as an assistant turn. A missing session
// is rebuilt from the merged audio, transcript and earlier turns first.
func (m *Manager) SendTurn(ctx context.Context, id, text string, clip *audio.Segment) (bool, error) {
	hasText := strings.TrimSpace(text) != ""
	hasAudio := clip != nil && clip.Len() > 0

	var (
		sess       conversation.Session
		seed       conversation.Seed
		segs       []audio.Segment
		epoch      uint64
		transcript bool
		busy       bool
	)
	err := m.update(id, func(it *Item) error {
		if it.AwaitingReply || it.State == StateProcessing || (!hasText && !hasAudio) {
			busy = true
			return errSkip
		}
		history := it.Turns
		if len(history) > 0 && history[0].Speaker == conversation.Assistant {
			history = history[1:]
		}
		seed = conversation.Seed{
			Model:   it.Model,
			History: append([]Turn(nil), history...),
		}
		if it.Transcript != nil {
			transcript = true
			seed.Transcript = *it.Transcript
		}
		segs = it.Segments
		sess = it.session
		epoch = it.epoch

		label := text
		if !hasText {
			label = AudioPlaceholder
		}
		it.Turns = append(it.Turns, Turn{Speaker: conversation.User, Text: label})
		it.AwaitingReply = true
		return nil
	})
	if busy {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ctx = context.WithoutCancel(ctx)
	ctx, span := observability.StartSpan(ctx, observability.SpanChatTurn,
		attribute.String(observability.AttrItemID, id),
		attribute.String(observability.AttrModel, seed.Model),
	)

	reply, callErr := m.converse(ctx, id, epoch, sess, seed, segs, transcript, text, clip)

	observability.EndSpan(span, callErr)
	outcome := observability.OutcomeOK
	if callErr != nil {
		outcome = observability.OutcomeError
		reply = ErrorTurnPrefix + errors.Message(callErr)
		m.log.Warn("chat turn failed", logger.MergeWithError(logger.ItemFields(id, ""), callErr))
	}
	m.deps.Metrics.RecordChatTurn(ctx, outcome)

	err = m.update(id, func(it *Item) error {
		if it.epoch != epoch {
			return errSkip
		}
		it.Turns = append(it.Turns, Turn{Speaker: conversation.Assistant, Text: reply})
		it.AwaitingReply = false
		return nil
	})
	if err != nil {
		m.log.Debug("chat reply dropped", logger.MergeWithError(logger.ItemFields(id, ""), err))
	}
	return true, nil
}

func (m *Manager) converse(ctx context.Context, id string, epoch uint64, sess conversation.Session,
	seed conversation.Seed, segs []audio.Segment, transcript bool, text string, clip *audio.Segment) (string, error) {
	if sess == nil {
		if !transcript || m.deps.Conversation == nil {
			return "", errSessionUnavailable
		}
		seed.Audio = audio.Merge(segs).Clean()
		created, err := m.deps.Conversation.CreateSession(ctx, seed)
		if err != nil {
			return "", err
		}
		sess = created
		_ = m.update(id, func(it *Item) error {
			if it.epoch != epoch || it.session != nil {
				return errSkip
			}
			it.session = created
			return nil
		})
		m.log.Debug("chat session created", map[string]interface{}{
			logger.FieldItemID: id, logger.FieldCount: len(seed.History),
		})
	}

	msg := conversation.Message{Text: text}
	if clip != nil && clip.Len() > 0 {
		p := audio.PayloadOf(*clip)
		msg.Audio = &p
		if strings.TrimSpace(text) == "" {
			msg.Instruction = conversation.SpokenFollowUp
		}
	}
	return sess.Send(ctx, msg)
}
