package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"PhenomenonIndexer/internal/interfaces"
	"PhenomenonIndexer/internal/metrics"
	"PhenomenonIndexer/internal/model"
	"PhenomenonIndexer/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// ErrUnsupportedEvent payload type has no projection handler
var ErrUnsupportedEvent = errors.New("unsupported chain event")

// ProjectionService folds chain events into the game/prophet/acolyte tables.
// Each event is applied in one transaction together with the source checkpoint,
// so a redelivered event is skipped instead of double counted.
type ProjectionService struct {
	repo      repository.ProjectionRepository
	roles     interfaces.RoleResolver
	publisher interfaces.ChangePublisher
	metrics   *metrics.Collectors
	logger    *logrus.Logger
	sourceID  string // checkpoint row id
}

type ProjectionOption func(*ProjectionService)

// WithPublisher notifies subscribers after each committed event
func WithPublisher(p interfaces.ChangePublisher) ProjectionOption {
	return func(s *ProjectionService) { s.publisher = p }
}

func WithMetrics(m *metrics.Collectors) ProjectionOption {
	return func(s *ProjectionService) { s.metrics = m }
}

// NewProjectionService roles may be nil, every prophet then starts as a plain prophet
func NewProjectionService(repo repository.ProjectionRepository, roles interfaces.RoleResolver, chainID uint64, logger *logrus.Logger, opts ...ProjectionOption) *ProjectionService {
	s := &ProjectionService{
		repo:     repo,
		roles:    roles,
		logger:   logger,
		sourceID: strconv.FormatUint(chainID, 10),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkpoint last applied position, nil before the first event
func (s *ProjectionService) Checkpoint(ctx context.Context) (*model.Checkpoint, error) {
	return s.repo.GetCheckpoint(ctx, s.sourceID)
}

// Apply projects ev unless the checkpoint already covers it. Returns whether it was applied.
// On error nothing is written and the caller may retry the same event.
func (s *ProjectionService) Apply(ctx context.Context, ev *ChainEvent) (bool, error) {
	if ev == nil {
		return false, fmt.Errorf("apply: nil event")
	}
	var (
		changed []string
		skipped bool
	)
	err := s.repo.WithTx(ctx, func(tx repository.ProjectionRepository) error {
		cp, err := tx.GetCheckpoint(ctx, s.sourceID)
		if err != nil {
			return fmt.Errorf("load checkpoint: %w", err)
		}
		if cp.Covers(int64(ev.BlockNumber), int(ev.LogIndex)) {
			skipped = true
			return nil
		}
		changed, err = s.dispatch(ctx, tx, ev)
		if err != nil {
			return err
		}
		return tx.SaveCheckpoint(ctx, &model.Checkpoint{
			ID:          s.sourceID,
			BlockNumber: int64(ev.BlockNumber),
			LogIndex:    int(ev.LogIndex),
			BlockHash:   ev.BlockHash,
		})
	})
	if err != nil {
		s.metrics.EventFailed(ev.Name)
		return false, fmt.Errorf("apply %s at block %d log %d: %w", ev.Name, ev.BlockNumber, ev.LogIndex, err)
	}
	if skipped {
		s.metrics.EventSkipped()
		s.logger.WithFields(logrus.Fields{
			"event": ev.Name,
			"block": ev.BlockNumber,
			"log":   ev.LogIndex,
		}).Debug("event already applied, skipping")
		return false, nil
	}

	s.metrics.EventApplied(ev.Name, ev.BlockNumber)
	s.publish(ctx, ev, changed)
	return true, nil
}

// Replay runs the handler for ev without consulting or advancing the checkpoint.
// Lifecycle and gameplay handlers are idempotent under replay; ticket trades are
// additive and rely on Apply's checkpoint for exactly-once.
func (s *ProjectionService) Replay(ctx context.Context, ev *ChainEvent) error {
	if ev == nil {
		return fmt.Errorf("replay: nil event")
	}
	return s.repo.WithTx(ctx, func(tx repository.ProjectionRepository) error {
		_, err := s.dispatch(ctx, tx, ev)
		return err
	})
}

// dispatch returns the ids of the games the event touched
func (s *ProjectionService) dispatch(ctx context.Context, tx repository.ProjectionRepository, ev *ChainEvent) ([]string, error) {
	switch p := ev.Payload.(type) {
	case ProphetEnteredGame:
		return s.onProphetEntered(ctx, tx, ev.LogMeta, p)
	case GameStarted:
		return s.onGameStarted(ctx, tx, ev.LogMeta, p)
	case GameEnded:
		return s.onGameEnded(ctx, tx, ev.LogMeta, p)
	case GameReset:
		return s.onGameReset(ctx, tx, ev.LogMeta, p)
	case CurrentTurn:
		return s.onCurrentTurn(ctx, tx, p)
	case NumberOfProphetsSet:
		return s.onNumberOfProphetsSet(ctx, tx, ev.LogMeta, p)
	case MiracleAttempted:
		return s.onMiracle(ctx, tx, ev.LogMeta, p)
	case SmiteAttempted:
		return s.onSmite(ctx, tx, ev.LogMeta, p)
	case Accusation:
		return s.onAccusation(ctx, tx, ev.LogMeta, p)
	case ForceMiracleTriggered:
		return s.onForceMiracle(ctx, tx, ev.LogMeta, p)
	case GainReligion:
		return s.onGainReligion(ctx, tx, ev.LogMeta, p)
	case ReligionLost:
		return s.onReligionLost(ctx, tx, ev.LogMeta, p)
	case TicketsClaimed:
		return s.onTicketsClaimed(ctx, tx, ev.LogMeta, p)
	case TicketSalesEnabled:
		return nil, tx.SaveTicketSalesEnabled(ctx, p.Enabled, int64(ev.BlockNumber))
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedEvent, ev.Payload)
	}
}

func (s *ProjectionService) publish(ctx context.Context, ev *ChainEvent, gameIDs []string) {
	if s.publisher == nil {
		return
	}
	for _, id := range gameIDs {
		err := s.publisher.PublishGameChange(ctx, interfaces.GameChange{
			GameID:      id,
			Event:       ev.Name,
			BlockNumber: ev.BlockNumber,
			LogIndex:    ev.LogIndex,
			TxHash:      ev.TxHash,
		})
		if err != nil {
			s.metrics.PublishFailed()
			s.logger.WithError(err).WithField("game_id", id).Warn("publish game change failed")
		}
	}
}

// newGameEvent narrative row skeleton; payload is stored as the args JSON.
// A payload that does not marshal leaves args empty.
func (s *ProjectionService) newGameEvent(meta LogMeta, gameID, eventType string, payload interface{}) *model.GameEvent {
	e := &model.GameEvent{
		ID:              meta.EventID(),
		GameID:          gameID,
		Type:            eventType,
		BlockNumber:     int64(meta.BlockNumber),
		LogIndex:        int(meta.LogIndex),
		TransactionHash: meta.TxHash,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event":   meta.Name,
			"game_id": gameID,
			"block":   meta.BlockNumber,
		}).Warn("event args not stored")
		return e
	}
	e.Args = datatypes.JSON(raw)
	return e
}

// requiredProphets current configured prophet count, nil if never set
func requiredProphets(ctx context.Context, tx repository.ProjectionRepository) (*int, error) {
	cfg, err := tx.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg == nil || cfg.NumberOfProphets == nil {
		return nil, nil
	}
	n := *cfg.NumberOfProphets
	return &n, nil
}

func intPtr(v int) *int          { return &v }
func boolPtr(v bool) *bool       { return &v }
func stringPtr(v string) *string { return &v }
