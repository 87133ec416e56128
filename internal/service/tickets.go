package service

import (
	"context"
	"fmt"
	"math/big"

	"PhenomenonIndexer/internal/model"
	"PhenomenonIndexer/internal/repository"

	"github.com/sirupsen/logrus"
)

// ticket trades carry no game number and are booked against the latest game

func (s *ProjectionService) latestGame(ctx context.Context, tx repository.ProjectionRepository, meta LogMeta) (*model.Game, error) {
	g, err := tx.LatestGame(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latest game: %w", err)
	}
	if g == nil {
		s.logger.WithFields(logrus.Fields{
			"event": meta.Name,
			"block": meta.BlockNumber,
		}).Debug("no game yet, ticket event ignored")
	}
	return g, nil
}

// isHighPriest whether address plays a high-priest prophet in the game
func isHighPriest(ctx context.Context, tx repository.ProjectionRepository, gameID, address string) (bool, error) {
	pr, err := tx.FindProphetByAddress(ctx, gameID, address)
	if err != nil {
		return false, fmt.Errorf("find prophet by address: %w", err)
	}
	return pr != nil && pr.Role == model.RoleHighPriest, nil
}

func (s *ProjectionService) onGainReligion(ctx context.Context, tx repository.ProjectionRepository, meta LogMeta, p GainReligion) ([]string, error) {
	g, err := s.latestGame(ctx, tx, meta)
	if err != nil || g == nil {
		return nil, err
	}
	buyer := model.NormalizeAddress(p.Buyer)

	held, err := tx.GetAcolyte(ctx, g.ID, buyer)
	if err != nil {
		return nil, fmt.Errorf("load holding: %w", err)
	}
	priest, err := isHighPriest(ctx, tx, g.ID, buyer)
	if err != nil {
		return nil, err
	}

	count := p.Tickets
	newBacking := held == nil
	if held != nil {
		count += held.TicketCount
		if held.ProphetIndex != p.TargetIndex {
			// switching allegiance carries the existing tickets over
			newBacking = true
			var hp int64
			if priest {
				hp = -1
			}
			if err := tx.AdjustProphetCounters(ctx, model.ProphetID(g.ID, held.ProphetIndex), -held.TicketCount, hp); err != nil {
				return nil, fmt.Errorf("release previous prophet %d: %w", held.ProphetIndex, err)
			}
			if err := tx.AdjustProphetCounters(ctx, model.ProphetID(g.ID, p.TargetIndex), held.TicketCount, 0); err != nil {
				return nil, fmt.Errorf("move tickets to prophet %d: %w", p.TargetIndex, err)
			}
		}
	}
	err = tx.SaveAcolyte(ctx, &model.Acolyte{
		GameID:       g.ID,
		OwnerAddress: buyer,
		ProphetIndex: p.TargetIndex,
		TicketCount:  count,
	})
	if err != nil {
		return nil, fmt.Errorf("save holding: %w", err)
	}

	var hp int64
	if priest && newBacking {
		hp = 1
	}
	if err := tx.AdjustProphetCounters(ctx, model.ProphetID(g.ID, p.TargetIndex), p.Tickets, hp); err != nil {
		return nil, fmt.Errorf("credit prophet %d: %w", p.TargetIndex, err)
	}

	balance := new(big.Int).Add(g.TokenBalance.Big(), model.NewBigInt(p.TotalPrice).Big())
	if err := s.settleTickets(ctx, tx, g.ID, balance); err != nil {
		return nil, err
	}

	ge := s.newGameEvent(meta, g.ID, model.EventGainReligion, p)
	ge.TargetIndex = intPtr(p.TargetIndex)
	ge.ActorAddress = stringPtr(buyer)
	if _, err := tx.InsertGameEventIfAbsent(ctx, ge); err != nil {
		return nil, fmt.Errorf("insert game event: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"game_id": g.ID,
		"buyer":   buyer,
		"prophet": p.TargetIndex,
		"tickets": p.Tickets,
	}).Info("tickets bought")
	return []string{g.ID}, nil
}

func (s *ProjectionService) onReligionLost(ctx context.Context, tx repository.ProjectionRepository, meta LogMeta, p ReligionLost) ([]string, error) {
	g, err := s.latestGame(ctx, tx, meta)
	if err != nil || g == nil {
		return nil, err
	}
	seller := model.NormalizeAddress(p.Seller)

	held, err := tx.GetAcolyte(ctx, g.ID, seller)
	if err != nil {
		return nil, fmt.Errorf("load holding: %w", err)
	}
	var hp int64
	if held != nil {
		remaining := held.TicketCount - p.Tickets
		if remaining <= 0 {
			if err := tx.DeleteAcolyte(ctx, held.ID); err != nil {
				return nil, fmt.Errorf("delete holding: %w", err)
			}
			priest, err := isHighPriest(ctx, tx, g.ID, seller)
			if err != nil {
				return nil, err
			}
			if priest {
				hp = -1
			}
		} else {
			held.TicketCount = remaining
			if err := tx.SaveAcolyte(ctx, held); err != nil {
				return nil, fmt.Errorf("save holding: %w", err)
			}
		}
	}
	if err := tx.AdjustProphetCounters(ctx, model.ProphetID(g.ID, p.TargetIndex), -p.Tickets, hp); err != nil {
		return nil, fmt.Errorf("debit prophet %d: %w", p.TargetIndex, err)
	}

	balance := model.SubClamped(g.TokenBalance.Big(), model.NewBigInt(p.TotalPrice).Big())
	if err := s.settleTickets(ctx, tx, g.ID, balance); err != nil {
		return nil, err
	}

	ge := s.newGameEvent(meta, g.ID, model.EventReligionLost, p)
	ge.TargetIndex = intPtr(p.TargetIndex)
	ge.ActorAddress = stringPtr(seller)
	if _, err := tx.InsertGameEventIfAbsent(ctx, ge); err != nil {
		return nil, fmt.Errorf("insert game event: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"game_id": g.ID,
		"seller":  seller,
		"prophet": p.TargetIndex,
		"tickets": p.Tickets,
	}).Info("tickets sold")
	return []string{g.ID}, nil
}

// settleTickets writes the new pool balance and the game total, which always equals
// the sum of the game's holdings
func (s *ProjectionService) settleTickets(ctx context.Context, tx repository.ProjectionRepository, gameID string, balance *big.Int) error {
	total, err := tx.SumTickets(ctx, gameID)
	if err != nil {
		return fmt.Errorf("sum tickets: %w", err)
	}
	err = tx.UpdateGame(ctx, gameID, map[string]interface{}{
		"total_tickets": total,
		"token_balance": model.NewBigInt(balance),
	})
	if err != nil {
		return fmt.Errorf("update game %s: %w", gameID, err)
	}
	return nil
}

func (s *ProjectionService) onTicketsClaimed(ctx context.Context, tx repository.ProjectionRepository, meta LogMeta, p TicketsClaimed) ([]string, error) {
	gameID := model.GameID(p.GameNumber)
	g, err := tx.GetGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", gameID, err)
	}
	if g == nil {
		s.logger.WithField("game_id", gameID).Debug("claim for unknown game, ignoring")
		return nil, nil
	}
	player := model.NormalizeAddress(p.Player)

	inserted, err := tx.InsertTicketClaimIfAbsent(ctx, &model.TicketClaim{
		GameID:          gameID,
		OwnerAddress:    player,
		TokensClaimed:   model.NewBigInt(p.TokensSent),
		BlockNumber:     int64(meta.BlockNumber),
		TransactionHash: meta.TxHash,
	})
	if err != nil {
		return nil, fmt.Errorf("insert claim: %w", err)
	}
	if inserted {
		balance := model.SubClamped(g.TokenBalance.Big(), model.NewBigInt(p.TokensSent).Big())
		if err := tx.UpdateGame(ctx, gameID, map[string]interface{}{"token_balance": model.NewBigInt(balance)}); err != nil {
			return nil, fmt.Errorf("update game %s: %w", gameID, err)
		}
	}

	ge := s.newGameEvent(meta, gameID, model.EventTicketsClaimed, p)
	ge.ActorAddress = stringPtr(player)
	if _, err := tx.InsertGameEventIfAbsent(ctx, ge); err != nil {
		return nil, fmt.Errorf("insert game event: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"game_id": gameID,
		"player":  player,
		"tokens":  model.NewBigInt(p.TokensSent).String(),
	}).Info("tickets claimed")
	return []string{gameID}, nil
}
