package service

import (
	"context"
	"fmt"

	"PhenomenonIndexer/internal/model"
	"PhenomenonIndexer/internal/repository"

	"github.com/sirupsen/logrus"
)

// gameplay events carry no game number; they apply to every started game

func (s *ProjectionService) onMiracle(ctx context.Context, tx repository.ProjectionRepository, meta LogMeta, p MiracleAttempted) ([]string, error) {
	return s.forEachStartedGame(ctx, tx, meta, func(gameID string) (*model.GameEvent, error) {
		if !p.Success {
			if err := s.setProphet(ctx, tx, gameID, p.ProphetIndex, "is_alive", false); err != nil {
				return nil, err
			}
		}
		ge := s.newGameEvent(meta, gameID, model.EventMiracleAttempted, p)
		ge.ProphetIndex = intPtr(p.ProphetIndex)
		ge.Success = boolPtr(p.Success)
		return ge, nil
	})
}

func (s *ProjectionService) onSmite(ctx context.Context, tx repository.ProjectionRepository, meta LogMeta, p SmiteAttempted) ([]string, error) {
	return s.forEachStartedGame(ctx, tx, meta, func(gameID string) (*model.GameEvent, error) {
		var err error
		if p.Success {
			err = s.setProphet(ctx, tx, gameID, p.TargetIndex, "is_alive", false)
		} else {
			err = s.setProphet(ctx, tx, gameID, p.ProphetIndex, "is_free", false)
		}
		if err != nil {
			return nil, err
		}
		ge := s.newGameEvent(meta, gameID, model.EventSmiteAttempted, p)
		ge.ProphetIndex = intPtr(p.ProphetIndex)
		ge.TargetIndex = intPtr(p.TargetIndex)
		ge.Success = boolPtr(p.Success)
		return ge, nil
	})
}

func (s *ProjectionService) onAccusation(ctx context.Context, tx repository.ProjectionRepository, meta LogMeta, p Accusation) ([]string, error) {
	return s.forEachStartedGame(ctx, tx, meta, func(gameID string) (*model.GameEvent, error) {
		var err error
		switch {
		case p.Success && p.TargetStillActive:
			err = s.setProphet(ctx, tx, gameID, p.TargetIndex, "is_free", false)
		case p.Success:
			err = s.setProphet(ctx, tx, gameID, p.TargetIndex, "is_alive", false)
		default:
			err = s.setProphet(ctx, tx, gameID, p.ProphetIndex, "is_free", false)
		}
		if err != nil {
			return nil, err
		}
		ge := s.newGameEvent(meta, gameID, model.EventAccusation, p)
		ge.ProphetIndex = intPtr(p.ProphetIndex)
		ge.TargetIndex = intPtr(p.TargetIndex)
		ge.Success = boolPtr(p.Success)
		ge.TargetIsAlive = boolPtr(p.TargetStillActive)
		return ge, nil
	})
}

// onForceMiracle only records the event; the outcome arrives as a separate miracleAttempted
func (s *ProjectionService) onForceMiracle(ctx context.Context, tx repository.ProjectionRepository, meta LogMeta, p ForceMiracleTriggered) ([]string, error) {
	s.logger.WithFields(logrus.Fields{
		"prophet_index": p.ProphetIndex,
		"block":         meta.BlockNumber,
	}).Info("forced miracle triggered")
	return s.forEachStartedGame(ctx, tx, meta, func(gameID string) (*model.GameEvent, error) {
		ge := s.newGameEvent(meta, gameID, model.EventForceMiracleTriggered, p)
		ge.ProphetIndex = intPtr(p.ProphetIndex)
		return ge, nil
	})
}

// forEachStartedGame runs fn per started game and stores the event row it returns,
// keyed by the log and the game it was written for.
func (s *ProjectionService) forEachStartedGame(ctx context.Context, tx repository.ProjectionRepository, meta LogMeta, fn func(gameID string) (*model.GameEvent, error)) ([]string, error) {
	games, err := tx.ListGamesByStatus(ctx, model.GameStatusStarted)
	if err != nil {
		return nil, fmt.Errorf("list started games: %w", err)
	}
	if len(games) == 0 {
		s.logger.WithFields(logrus.Fields{
			"event": meta.Name,
			"block": meta.BlockNumber,
		}).Debug("no started game, gameplay event ignored")
		return nil, nil
	}
	ids := make([]string, 0, len(games))
	for _, g := range games {
		ge, err := fn(g.ID)
		if err != nil {
			return nil, fmt.Errorf("game %s: %w", g.ID, err)
		}
		if ge != nil {
			ge.ID = meta.GameEventID(g.ID)
			if _, err := tx.InsertGameEventIfAbsent(ctx, ge); err != nil {
				return nil, fmt.Errorf("insert game event: %w", err)
			}
		}
		ids = append(ids, g.ID)
	}
	return ids, nil
}

// setProphet writes one flag; a prophet index with no row is a no-op
func (s *ProjectionService) setProphet(ctx context.Context, tx repository.ProjectionRepository, gameID string, prophetIndex int, column string, value bool) error {
	if err := tx.UpdateProphet(ctx, model.ProphetID(gameID, prophetIndex), map[string]interface{}{column: value}); err != nil {
		return fmt.Errorf("set %s on prophet %d: %w", column, prophetIndex, err)
	}
	s.logger.WithFields(logrus.Fields{
		"game_id":       gameID,
		"prophet_index": prophetIndex,
		column:          value,
	}).Info("prophet updated")
	return nil
}
