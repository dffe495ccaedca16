package transcription

import (
	"context"
	"time"

	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/provider"
	"github.com/kbukum/scribe/resilience"
)

// Router is a Gateway over a provider.Manager: each call goes to the first
// available provider and is retried per the retry config.
type Router struct {
	manager *provider.Manager[Provider]
	retry   resilience.RetryConfig
	log     *logger.Logger
}

// NewRouter creates a Router.
func NewRouter(manager *provider.Manager[Provider], retry resilience.RetryConfig) *Router {
	r := &Router{manager: manager, retry: retry, log: logger.Get("transcription")}
	r.retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		r.log.Warn("transcription attempt failed, retrying", map[string]interface{}{
			"attempt": attempt, "backoff_ms": backoff.Milliseconds(), logger.FieldError: err.Error(),
		})
	}
	return r
}

var _ Gateway = (*Router)(nil)

// Transcribe implements Gateway. Every failure is a PROVIDER_ERROR AppError.
func (r *Router) Transcribe(ctx context.Context, payload audio.Payload, model string) (string, error) {
	if payload.Empty() {
		return "", errors.InvalidInput("audio", "no audio to transcribe")
	}

	p, err := r.manager.Get(ctx)
	if err != nil {
		return "", errors.ProviderError(Service, err)
	}

	text, err := resilience.Retry(ctx, r.retry, func() (string, error) {
		return p.Transcribe(ctx, payload, model)
	})
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeProvider) {
			return "", err
		}
		return "", errors.ProviderError(Service, err).WithDetail(logger.FieldProvider, p.Name())
	}
	return text, nil
}
