package service

import (
	"context"
	"fmt"

	"PhenomenonIndexer/internal/model"
	"PhenomenonIndexer/internal/repository"

	"github.com/sirupsen/logrus"
)

func (s *ProjectionService) onNumberOfProphetsSet(ctx context.Context, tx repository.ProjectionRepository, meta LogMeta, p NumberOfProphetsSet) ([]string, error) {
	if err := tx.SaveProphetCount(ctx, p.NumberOfProphets, int64(meta.BlockNumber)); err != nil {
		return nil, fmt.Errorf("save prophet count: %w", err)
	}
	n, err := tx.BackfillProphetsRequired(ctx, p.NumberOfProphets)
	if err != nil {
		return nil, fmt.Errorf("backfill prophets required: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"number_of_prophets": p.NumberOfProphets,
		"backfilled_games":   n,
	}).Info("prophet count configured")
	return nil, nil
}

// openGame creates the game row in the open state if it does not exist yet
func (s *ProjectionService) openGame(ctx context.Context, tx repository.ProjectionRepository, meta LogMeta, gameNumber int64) (string, bool, error) {
	gameID := model.GameID(gameNumber)
	required, err := requiredProphets(ctx, tx)
	if err != nil {
		return "", false, err
	}
	start := int64(meta.BlockNumber)
	created, err := tx.CreateGameIfAbsent(ctx, &model.Game{
		ID:               gameID,
		GameNumber:       gameNumber,
		Status:           model.GameStatusOpen,
		ProphetsRequired: required,
		TokenBalance:     model.BigIntFromInt64(0),
		StartBlock:       &start,
	})
	if err != nil {
		return "", false, fmt.Errorf("create game %s: %w", gameID, err)
	}
	if created {
		s.logger.WithFields(logrus.Fields{
			"game_id": gameID,
			"block":   meta.BlockNumber,
		}).Info("game opened")
	}
	return gameID, created, nil
}

func (s *ProjectionService) onProphetEntered(ctx context.Context, tx repository.ProjectionRepository, meta LogMeta, p ProphetEnteredGame) ([]string, error) {
	gameID, _, err := s.openGame(ctx, tx, meta, p.GameNumber)
	if err != nil {
		return nil, err
	}

	err = tx.UpsertProphet(ctx, &model.Prophet{
		ID:            model.ProphetID(gameID, p.ProphetIndex),
		GameID:        gameID,
		ProphetIndex:  p.ProphetIndex,
		PlayerAddress: p.Sender,
		IsAlive:       true,
		IsFree:        true,
		Role:          model.RoleProphet,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert prophet %d: %w", p.ProphetIndex, err)
	}

	// prophets_remaining tracks registered rows, not join events
	count, err := tx.CountProphets(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("count prophets: %w", err)
	}
	if err := tx.UpdateGame(ctx, gameID, map[string]interface{}{"prophets_remaining": count}); err != nil {
		return nil, fmt.Errorf("update game %s: %w", gameID, err)
	}

	ge := s.newGameEvent(meta, gameID, model.EventProphetEnteredGame, p)
	ge.ProphetIndex = intPtr(p.ProphetIndex)
	ge.ActorAddress = stringPtr(p.Sender)
	if _, err := tx.InsertGameEventIfAbsent(ctx, ge); err != nil {
		return nil, fmt.Errorf("insert game event: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"game_id":       gameID,
		"prophet_index": p.ProphetIndex,
		"player":        model.NormalizeAddress(p.Sender),
	}).Info("prophet entered game")
	return []string{gameID}, nil
}

func (s *ProjectionService) onGameStarted(ctx context.Context, tx repository.ProjectionRepository, meta LogMeta, p GameStarted) ([]string, error) {
	gameID := model.GameID(p.GameNumber)
	g, err := tx.GetGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", gameID, err)
	}
	if g == nil || g.Status != model.GameStatusOpen {
		s.logger.WithField("game_id", gameID).Debug("gameStarted for a game that is not open, ignoring")
		return nil, nil
	}

	prophets, err := tx.ListProphets(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("list prophets: %w", err)
	}
	for _, pr := range prophets {
		// every prophet backs themselves with one ticket
		created, err := tx.InsertAcolyteIfAbsent(ctx, &model.Acolyte{
			GameID:       gameID,
			OwnerAddress: pr.PlayerAddress,
			ProphetIndex: pr.ProphetIndex,
			TicketCount:  1,
		})
		if err != nil {
			return nil, fmt.Errorf("self-backing acolyte for prophet %d: %w", pr.ProphetIndex, err)
		}
		var self int64
		if created {
			self = 1
		}
		if err := tx.AdjustProphetCounters(ctx, pr.ID, self, 0); err != nil {
			return nil, fmt.Errorf("prophet %d counters: %w", pr.ProphetIndex, err)
		}
		role := s.resolveRole(ctx, pr.ProphetIndex, meta.BlockNumber)
		if err := tx.UpdateProphet(ctx, pr.ID, map[string]interface{}{"role": role}); err != nil {
			return nil, fmt.Errorf("prophet %d role: %w", pr.ProphetIndex, err)
		}
	}

	total, err := tx.SumTickets(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("sum tickets: %w", err)
	}
	err = tx.UpdateGame(ctx, gameID, map[string]interface{}{
		"status":               model.GameStatusStarted,
		"current_prophet_turn": 0,
		"total_tickets":        total,
	})
	if err != nil {
		return nil, fmt.Errorf("start game %s: %w", gameID, err)
	}

	if _, err := tx.InsertGameEventIfAbsent(ctx, s.newGameEvent(meta, gameID, model.EventGameStarted, p)); err != nil {
		return nil, fmt.Errorf("insert game event: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"game_id":  gameID,
		"prophets": len(prophets),
		"tickets":  total,
	}).Info("game started")
	return []string{gameID}, nil
}

// resolveRole reads the prophet's role at block; any failure falls back to a plain prophet
func (s *ProjectionService) resolveRole(ctx context.Context, prophetIndex int, block uint64) string {
	if s.roles == nil {
		return model.RoleProphet
	}
	role, err := s.roles.ResolveRole(ctx, prophetIndex, block)
	if err != nil {
		s.metrics.RoleReadFailed()
		s.logger.WithError(err).WithFields(logrus.Fields{
			"prophet_index": prophetIndex,
			"block":         block,
		}).Warn("role read failed, defaulting to prophet")
		return model.RoleProphet
	}
	if role != model.RoleHighPriest {
		return model.RoleProphet
	}
	return role
}

func (s *ProjectionService) onCurrentTurn(ctx context.Context, tx repository.ProjectionRepository, p CurrentTurn) ([]string, error) {
	games, err := tx.ListGamesByStatus(ctx, model.GameStatusStarted)
	if err != nil {
		return nil, fmt.Errorf("list started games: %w", err)
	}
	ids := make([]string, 0, len(games))
	for _, g := range games {
		if err := tx.UpdateGame(ctx, g.ID, map[string]interface{}{"current_prophet_turn": p.NextProphetTurn}); err != nil {
			return nil, fmt.Errorf("update turn of game %s: %w", g.ID, err)
		}
		ids = append(ids, g.ID)
	}
	return ids, nil
}

func (s *ProjectionService) onGameEnded(ctx context.Context, tx repository.ProjectionRepository, meta LogMeta, p GameEnded) ([]string, error) {
	gameID := model.GameID(p.GameNumber)
	g, err := tx.GetGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", gameID, err)
	}
	if g == nil || g.Status != model.GameStatusStarted {
		s.logger.WithField("game_id", gameID).Debug("gameEnded for a game that is not started, ignoring")
		return nil, nil
	}

	winning, err := tx.SumTicketsForProphet(ctx, gameID, p.WinnerIndex)
	if err != nil {
		return nil, fmt.Errorf("sum winner tickets: %w", err)
	}
	err = tx.UpdateGame(ctx, gameID, map[string]interface{}{
		"status":                 model.GameStatusEnded,
		"end_block":              int64(meta.BlockNumber),
		"winner_prophet_index":   p.WinnerIndex,
		"end_total_tickets":      g.TotalTickets,
		"winning_tickets_at_end": winning,
		"token_balance_at_end":   model.NewBigInt(g.TokenBalance.Int),
	})
	if err != nil {
		return nil, fmt.Errorf("end game %s: %w", gameID, err)
	}

	tpt := model.NewBigInt(p.TokensPerTicket)
	if err := tx.UpdateProphet(ctx, model.ProphetID(gameID, p.WinnerIndex), map[string]interface{}{"tokens_per_ticket": tpt}); err != nil {
		return nil, fmt.Errorf("cache tokens per ticket: %w", err)
	}

	ge := s.newGameEvent(meta, gameID, model.EventGameEnded, p)
	ge.ProphetIndex = intPtr(p.WinnerIndex)
	if _, err := tx.InsertGameEventIfAbsent(ctx, ge); err != nil {
		return nil, fmt.Errorf("insert game event: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"game_id":         gameID,
		"winner":          p.WinnerIndex,
		"end_tickets":     g.TotalTickets,
		"winning_tickets": winning,
	}).Info("game ended")
	return []string{gameID}, nil
}

func (s *ProjectionService) onGameReset(ctx context.Context, tx repository.ProjectionRepository, meta LogMeta, p GameReset) ([]string, error) {
	gameID, created, err := s.openGame(ctx, tx, meta, p.NewGameNumber)
	if err != nil {
		return nil, err
	}
	if !created {
		s.logger.WithField("game_id", gameID).Debug("gameReset for an existing game, state kept")
	}
	if _, err := tx.InsertGameEventIfAbsent(ctx, s.newGameEvent(meta, gameID, model.EventGameReset, p)); err != nil {
		return nil, fmt.Errorf("insert game event: %w", err)
	}
	return []string{gameID}, nil
}
