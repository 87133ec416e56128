package repository

import (
	"context"
	"errors"
	"fmt"

	"PhenomenonIndexer/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProjectionRepository write-side access used by the projection handlers.
// Lookups return (nil, nil) when the row does not exist.
type ProjectionRepository interface {
	// WithTx runs fn inside one transaction; fn receives a repository bound to it
	WithTx(ctx context.Context, fn func(tx ProjectionRepository) error) error

	GetConfig(ctx context.Context) (*model.Config, error)
	SaveProphetCount(ctx context.Context, count int, block int64) error
	SaveTicketSalesEnabled(ctx context.Context, enabled bool, block int64) error
	// BackfillProphetsRequired stamps count on every game still missing it
	BackfillProphetsRequired(ctx context.Context, count int) (int64, error)

	// CreateGameIfAbsent inserts g unless the id exists; reports whether it inserted
	CreateGameIfAbsent(ctx context.Context, g *model.Game) (bool, error)
	GetGame(ctx context.Context, gameID string) (*model.Game, error)
	// LatestGame highest game number
	LatestGame(ctx context.Context) (*model.Game, error)
	ListGamesByStatus(ctx context.Context, status string) ([]*model.Game, error)
	UpdateGame(ctx context.Context, gameID string, fields map[string]interface{}) error

	// UpsertProphet inserts p; on conflict only the player address is re-affirmed
	UpsertProphet(ctx context.Context, p *model.Prophet) error
	FindProphetByAddress(ctx context.Context, gameID, address string) (*model.Prophet, error)
	ListProphets(ctx context.Context, gameID string) ([]*model.Prophet, error)
	CountProphets(ctx context.Context, gameID string) (int64, error)
	UpdateProphet(ctx context.Context, prophetID string, fields map[string]interface{}) error
	// AdjustProphetCounters adds the deltas to accolites/high_priests, clamping each at zero
	AdjustProphetCounters(ctx context.Context, prophetID string, accolites, highPriests int64) error

	GetAcolyte(ctx context.Context, gameID, owner string) (*model.Acolyte, error)
	// SaveAcolyte upserts all mutable fields of a holding
	SaveAcolyte(ctx context.Context, a *model.Acolyte) error
	InsertAcolyteIfAbsent(ctx context.Context, a *model.Acolyte) (bool, error)
	DeleteAcolyte(ctx context.Context, acolyteID string) error
	SumTickets(ctx context.Context, gameID string) (int64, error)
	SumTicketsForProphet(ctx context.Context, gameID string, prophetIndex int) (int64, error)

	InsertTicketClaimIfAbsent(ctx context.Context, c *model.TicketClaim) (bool, error)
	InsertGameEventIfAbsent(ctx context.Context, e *model.GameEvent) (bool, error)

	GetCheckpoint(ctx context.Context, sourceID string) (*model.Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp *model.Checkpoint) error
}

type projectionRepository struct {
	db *gorm.DB
}

// NewProjectionRepository creates the write-side repository
func NewProjectionRepository(db *gorm.DB) ProjectionRepository {
	return &projectionRepository{db: db}
}

func (r *projectionRepository) WithTx(ctx context.Context, fn func(tx ProjectionRepository) error) (err error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin tx: %w", tx.Error)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&projectionRepository{db: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// first wraps First so a missing row is (false, nil)
func first(db *gorm.DB, dest interface{}) (bool, error) {
	err := db.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *projectionRepository) GetConfig(ctx context.Context) (*model.Config, error) {
	var c model.Config
	ok, err := first(r.db.WithContext(ctx).Where("id = ?", model.ConfigID), &c)
	if err != nil || !ok {
		return nil, err
	}
	return &c, nil
}

func (r *projectionRepository) SaveProphetCount(ctx context.Context, count int, block int64) error {
	c := &model.Config{ID: model.ConfigID, NumberOfProphets: &count, UpdatedBlock: block}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"number_of_prophets", "updated_block", "updated_at"}),
	}).Create(c).Error
}

func (r *projectionRepository) SaveTicketSalesEnabled(ctx context.Context, enabled bool, block int64) error {
	c := &model.Config{ID: model.ConfigID, TicketSalesEnabled: &enabled, UpdatedBlock: block}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"ticket_sales_enabled", "updated_block", "updated_at"}),
	}).Create(c).Error
}

func (r *projectionRepository) BackfillProphetsRequired(ctx context.Context, count int) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Game{}).
		Where("prophets_required IS NULL").
		Update("prophets_required", count)
	return res.RowsAffected, res.Error
}

func (r *projectionRepository) CreateGameIfAbsent(ctx context.Context, g *model.Game) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(g)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *projectionRepository) GetGame(ctx context.Context, gameID string) (*model.Game, error) {
	var g model.Game
	ok, err := first(r.db.WithContext(ctx).Where("id = ?", gameID), &g)
	if err != nil || !ok {
		return nil, err
	}
	return &g, nil
}

func (r *projectionRepository) LatestGame(ctx context.Context) (*model.Game, error) {
	var g model.Game
	ok, err := first(r.db.WithContext(ctx).Order("game_number DESC"), &g)
	if err != nil || !ok {
		return nil, err
	}
	return &g, nil
}

func (r *projectionRepository) ListGamesByStatus(ctx context.Context, status string) ([]*model.Game, error) {
	var list []*model.Game
	if err := r.db.WithContext(ctx).Where("status = ?", status).Order("game_number ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *projectionRepository) UpdateGame(ctx context.Context, gameID string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Game{}).Where("id = ?", gameID).Updates(fields).Error
}

func (r *projectionRepository) UpsertProphet(ctx context.Context, p *model.Prophet) error {
	p.PlayerAddress = model.NormalizeAddress(p.PlayerAddress)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"player_address", "updated_at"}),
	}).Create(p).Error
}

func (r *projectionRepository) FindProphetByAddress(ctx context.Context, gameID, address string) (*model.Prophet, error) {
	var p model.Prophet
	ok, err := first(r.db.WithContext(ctx).
		Where("game_id = ? AND player_address = ?", gameID, model.NormalizeAddress(address)).
		Order("prophet_index ASC"), &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

func (r *projectionRepository) ListProphets(ctx context.Context, gameID string) ([]*model.Prophet, error) {
	var list []*model.Prophet
	if err := r.db.WithContext(ctx).Where("game_id = ?", gameID).Order("prophet_index ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *projectionRepository) CountProphets(ctx context.Context, gameID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Prophet{}).Where("game_id = ?", gameID).Count(&n).Error
	return n, err
}

func (r *projectionRepository) UpdateProphet(ctx context.Context, prophetID string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Prophet{}).Where("id = ?", prophetID).Updates(fields).Error
}

func (r *projectionRepository) AdjustProphetCounters(ctx context.Context, prophetID string, accolites, highPriests int64) error {
	if accolites == 0 && highPriests == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.Prophet{}).Where("id = ?", prophetID).Updates(map[string]interface{}{
		"accolites":    clampedAdd("accolites", accolites),
		"high_priests": clampedAdd("high_priests", highPriests),
	}).Error
}

func clampedAdd(column string, delta int64) clause.Expr {
	return gorm.Expr(fmt.Sprintf("CASE WHEN %[1]s + ? < 0 THEN 0 ELSE %[1]s + ? END", column), delta, delta)
}

func (r *projectionRepository) GetAcolyte(ctx context.Context, gameID, owner string) (*model.Acolyte, error) {
	var a model.Acolyte
	ok, err := first(r.db.WithContext(ctx).Where("id = ?", model.HolderID(gameID, owner)), &a)
	if err != nil || !ok {
		return nil, err
	}
	return &a, nil
}

func (r *projectionRepository) SaveAcolyte(ctx context.Context, a *model.Acolyte) error {
	a.OwnerAddress = model.NormalizeAddress(a.OwnerAddress)
	a.ID = model.HolderID(a.GameID, a.OwnerAddress)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"prophet_index", "ticket_count", "updated_at"}),
	}).Create(a).Error
}

func (r *projectionRepository) InsertAcolyteIfAbsent(ctx context.Context, a *model.Acolyte) (bool, error) {
	a.OwnerAddress = model.NormalizeAddress(a.OwnerAddress)
	a.ID = model.HolderID(a.GameID, a.OwnerAddress)
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(a)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *projectionRepository) DeleteAcolyte(ctx context.Context, acolyteID string) error {
	return r.db.WithContext(ctx).Where("id = ?", acolyteID).Delete(&model.Acolyte{}).Error
}

func (r *projectionRepository) SumTickets(ctx context.Context, gameID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Acolyte{}).
		Where("game_id = ?", gameID).
		Select("COALESCE(SUM(ticket_count), 0)").
		Scan(&total).Error
	return total, err
}

func (r *projectionRepository) SumTicketsForProphet(ctx context.Context, gameID string, prophetIndex int) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Acolyte{}).
		Where("game_id = ? AND prophet_index = ?", gameID, prophetIndex).
		Select("COALESCE(SUM(ticket_count), 0)").
		Scan(&total).Error
	return total, err
}

func (r *projectionRepository) InsertTicketClaimIfAbsent(ctx context.Context, c *model.TicketClaim) (bool, error) {
	c.OwnerAddress = model.NormalizeAddress(c.OwnerAddress)
	c.ID = model.HolderID(c.GameID, c.OwnerAddress)
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(c)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *projectionRepository) InsertGameEventIfAbsent(ctx context.Context, e *model.GameEvent) (bool, error) {
	if e.ActorAddress != nil {
		addr := model.NormalizeAddress(*e.ActorAddress)
		e.ActorAddress = &addr
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *projectionRepository) GetCheckpoint(ctx context.Context, sourceID string) (*model.Checkpoint, error) {
	var cp model.Checkpoint
	ok, err := first(r.db.WithContext(ctx).Where("id = ?", sourceID), &cp)
	if err != nil || !ok {
		return nil, err
	}
	return &cp, nil
}

func (r *projectionRepository) SaveCheckpoint(ctx context.Context, cp *model.Checkpoint) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"block_number", "log_index", "block_hash", "updated_at"}),
	}).Create(cp).Error
}
