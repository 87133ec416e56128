package repository

import (
	"context"

	"PhenomenonIndexer/internal/model"

	"gorm.io/gorm"
)

// GameQueryRepository read-only access for the query API
type GameQueryRepository interface {
	// ListGames pages through games newest first; page and pageSize go through ClampPage
	ListGames(ctx context.Context, status string, page, pageSize int) ([]*model.Game, int64, error)
	GetGame(ctx context.Context, gameID string) (*model.Game, error)
	LatestGame(ctx context.Context) (*model.Game, error)
	ListProphets(ctx context.Context, gameID string) ([]*model.Prophet, error)
	ListAcolytes(ctx context.Context, gameID string, limit int) ([]*model.Acolyte, error)
	// ListEvents newest first: block number desc, log index desc
	ListEvents(ctx context.Context, gameID string, limit int) ([]*model.GameEvent, error)
	ListClaims(ctx context.Context, gameID string) ([]*model.TicketClaim, error)
	ListHoldingsByOwner(ctx context.Context, owner string) ([]*model.Acolyte, error)
	ListClaimsByOwner(ctx context.Context, owner string) ([]*model.TicketClaim, error)
	GetConfig(ctx context.Context) (*model.Config, error)
}

type gameQueryRepository struct {
	db *gorm.DB
}

// NewGameQueryRepository creates the read-side repository
func NewGameQueryRepository(db *gorm.DB) GameQueryRepository {
	return &gameQueryRepository{db: db}
}

// ClampPage page from 1, page size 1..100 with 20 as the fallback
func ClampPage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func (r *gameQueryRepository) ListGames(ctx context.Context, status string, page, pageSize int) ([]*model.Game, int64, error) {
	page, pageSize = ClampPage(page, pageSize)
	db := r.db.WithContext(ctx).Model(&model.Game{})
	if status != "" {
		db = db.Where("status = ?", status)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []*model.Game
	if err := db.Order("game_number DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *gameQueryRepository) GetGame(ctx context.Context, gameID string) (*model.Game, error) {
	var g model.Game
	ok, err := first(r.db.WithContext(ctx).Where("id = ?", gameID), &g)
	if err != nil || !ok {
		return nil, err
	}
	return &g, nil
}

func (r *gameQueryRepository) LatestGame(ctx context.Context) (*model.Game, error) {
	var g model.Game
	ok, err := first(r.db.WithContext(ctx).Order("game_number DESC"), &g)
	if err != nil || !ok {
		return nil, err
	}
	return &g, nil
}

func (r *gameQueryRepository) ListProphets(ctx context.Context, gameID string) ([]*model.Prophet, error) {
	var list []*model.Prophet
	if err := r.db.WithContext(ctx).Where("game_id = ?", gameID).Order("prophet_index ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *gameQueryRepository) ListAcolytes(ctx context.Context, gameID string, limit int) ([]*model.Acolyte, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	var list []*model.Acolyte
	if err := r.db.WithContext(ctx).Where("game_id = ?", gameID).
		Order("ticket_count DESC, owner_address ASC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *gameQueryRepository) ListEvents(ctx context.Context, gameID string, limit int) ([]*model.GameEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var list []*model.GameEvent
	if err := r.db.WithContext(ctx).Where("game_id = ?", gameID).
		Order("block_number DESC, log_index DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *gameQueryRepository) ListClaims(ctx context.Context, gameID string) ([]*model.TicketClaim, error) {
	var list []*model.TicketClaim
	if err := r.db.WithContext(ctx).Where("game_id = ?", gameID).Order("block_number ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *gameQueryRepository) ListHoldingsByOwner(ctx context.Context, owner string) ([]*model.Acolyte, error) {
	var list []*model.Acolyte
	if err := r.db.WithContext(ctx).Where("owner_address = ?", model.NormalizeAddress(owner)).
		Order("game_id DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *gameQueryRepository) ListClaimsByOwner(ctx context.Context, owner string) ([]*model.TicketClaim, error) {
	var list []*model.TicketClaim
	if err := r.db.WithContext(ctx).Where("owner_address = ?", model.NormalizeAddress(owner)).
		Order("block_number DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *gameQueryRepository) GetConfig(ctx context.Context) (*model.Config, error) {
	var c model.Config
	ok, err := first(r.db.WithContext(ctx).Where("id = ?", model.ConfigID), &c)
	if err != nil || !ok {
		return nil, err
	}
	return &c, nil
}
