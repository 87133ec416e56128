package listener

import (
	"context"
	"errors"
	"time"

	"PhenomenonIndexer/internal/model"
	"PhenomenonIndexer/internal/service"

	"github.com/sirupsen/logrus"
)

const maxRetryBackoff = time.Minute

// Projector the projection engine as seen by the worker
type Projector interface {
	Apply(ctx context.Context, ev *service.ChainEvent) (bool, error)
	Checkpoint(ctx context.Context) (*model.Checkpoint, error)
}

// ContractListener single consumer of the decoded event stream. Events are applied
// strictly in arrival order; a failing event is retried until it succeeds.
type ContractListener struct {
	projector Projector
	backoff   time.Duration
	logger    *logrus.Logger
}

// NewContractListener backoff is the first retry delay, doubled up to a minute
func NewContractListener(projector Projector, backoff time.Duration, logger *logrus.Logger) *ContractListener {
	if backoff <= 0 {
		backoff = time.Second
	}
	return &ContractListener{
		projector: projector,
		backoff:   backoff,
		logger:    logger,
	}
}

// Run consumes in until it is closed or ctx is done
func (l *ContractListener) Run(ctx context.Context, in <-chan *service.ChainEvent) error {
	l.logger.Info("ContractListener started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			l.handle(ctx, ev)
		}
	}
}

func (l *ContractListener) handle(ctx context.Context, ev *service.ChainEvent) {
	wait := l.backoff
	for attempt := 1; ; attempt++ {
		applied, err := l.projector.Apply(ctx, ev)
		if err == nil {
			if applied {
				l.logger.WithFields(logrus.Fields{
					"event": ev.Name,
					"block": ev.BlockNumber,
					"log":   ev.LogIndex,
				}).Debug("event applied")
			}
			return
		}
		entry := l.logger.WithError(err).WithFields(logrus.Fields{
			"event":   ev.Name,
			"block":   ev.BlockNumber,
			"log":     ev.LogIndex,
			"tx_hash": ev.TxHash,
			"attempt": attempt,
		})
		if errors.Is(err, service.ErrUnsupportedEvent) {
			entry.Error("event has no handler, dropped")
			return
		}
		entry.Warn("apply failed, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		if wait *= 2; wait > maxRetryBackoff {
			wait = maxRetryBackoff
		}
	}
}
