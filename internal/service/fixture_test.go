package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"testing"

	"PhenomenonIndexer/internal/interfaces"
	"PhenomenonIndexer/internal/model"
	"PhenomenonIndexer/internal/repository"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	addrA = "0xAAAA000000000000000000000000000000000001"
	addrB = "0xBBBB000000000000000000000000000000000002"
	addrC = "0xCCCC000000000000000000000000000000000003"
	addrD = "0xDDDD000000000000000000000000000000000004"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return db
}

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeRoles struct {
	roles map[int]string
	err   error
	calls int
}

func (f *fakeRoles) ResolveRole(_ context.Context, prophetIndex int, _ uint64) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if r, ok := f.roles[prophetIndex]; ok {
		return r, nil
	}
	return model.RoleProphet, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []interfaces.GameChange
	err     error
}

func (p *recordingPublisher) PublishGameChange(_ context.Context, c interfaces.GameChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return p.err
}

// fixture drives a ProjectionService over an in-memory database, one event per block
type fixture struct {
	t     *testing.T
	ctx   context.Context
	db    *gorm.DB
	svc   *ProjectionService
	roles *fakeRoles
	pub   *recordingPublisher
	block uint64
	log   []*ChainEvent
}

func newFixture(t *testing.T) *fixture {
	db := newTestDB(t)
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		db:    db,
		roles: &fakeRoles{roles: map[int]string{}},
		pub:   &recordingPublisher{},
		block: 100,
	}
	f.svc = NewProjectionService(repository.NewProjectionRepository(db), f.roles, 84532, newTestLogger(), WithPublisher(f.pub))
	return f
}

func (f *fixture) event(payload interface{}) *ChainEvent {
	f.block++
	name := fmt.Sprintf("%T", payload)
	return &ChainEvent{
		LogMeta: LogMeta{
			Name:        name[strings.LastIndex(name, ".")+1:],
			BlockNumber: f.block,
			BlockHash:   fmt.Sprintf("0xBLOCK%d", f.block),
			TxHash:      fmt.Sprintf("0xtx%d", f.block),
			LogIndex:    0,
		},
		Payload: payload,
	}
}

// apply applies payload as the next log and requires it to be projected
func (f *fixture) apply(payloads ...interface{}) {
	f.t.Helper()
	for _, p := range payloads {
		ev := f.event(p)
		applied, err := f.svc.Apply(f.ctx, ev)
		require.NoError(f.t, err)
		require.True(f.t, applied)
		f.log = append(f.log, ev)
	}
}

func (f *fixture) game(gameID string) *model.Game {
	f.t.Helper()
	var g model.Game
	require.NoError(f.t, f.db.Where("id = ?", gameID).First(&g).Error)
	return &g
}

func (f *fixture) gameCount() int64 {
	var n int64
	require.NoError(f.t, f.db.Model(&model.Game{}).Count(&n).Error)
	return n
}

func (f *fixture) prophet(gameID string, idx int) *model.Prophet {
	f.t.Helper()
	var p model.Prophet
	require.NoError(f.t, f.db.Where("id = ?", model.ProphetID(gameID, idx)).First(&p).Error)
	return &p
}

func (f *fixture) acolyte(gameID, owner string) *model.Acolyte {
	f.t.Helper()
	var a model.Acolyte
	err := f.db.Where("id = ?", model.HolderID(gameID, owner)).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	require.NoError(f.t, err)
	return &a
}

func (f *fixture) acolytes(gameID string) []model.Acolyte {
	var list []model.Acolyte
	require.NoError(f.t, f.db.Where("game_id = ?", gameID).Order("id").Find(&list).Error)
	return list
}

func (f *fixture) events(gameID string) []model.GameEvent {
	var list []model.GameEvent
	require.NoError(f.t, f.db.Where("game_id = ?", gameID).Order("block_number, log_index").Find(&list).Error)
	return list
}

func (f *fixture) ticketSum(gameID string) int64 {
	var sum int64
	require.NoError(f.t, f.db.Model(&model.Acolyte{}).Where("game_id = ?", gameID).
		Select("COALESCE(SUM(ticket_count), 0)").Scan(&sum).Error)
	return sum
}

// startGame sets the prophet count, registers n prophets on game number and starts it
func (f *fixture) startGame(gameNumber int64, players ...string) {
	f.t.Helper()
	f.apply(NumberOfProphetsSet{NumberOfProphets: len(players)})
	for i, addr := range players {
		f.apply(ProphetEnteredGame{GameNumber: gameNumber, ProphetIndex: i, Sender: addr})
	}
	f.apply(GameStarted{GameNumber: gameNumber})
}

func wei(v int64) *big.Int { return big.NewInt(v) }
