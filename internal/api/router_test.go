package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"PhenomenonIndexer/internal/interfaces"
	"PhenomenonIndexer/internal/metrics"
	"PhenomenonIndexer/internal/model"
	"PhenomenonIndexer/internal/neynar"
	"PhenomenonIndexer/internal/repository"
	"PhenomenonIndexer/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	prophetA = "0xaaaa000000000000000000000000000000000001"
	prophetB = "0xbbbb000000000000000000000000000000000002"
	holder   = "0xcccc000000000000000000000000000000000003"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var dbSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := fmt.Sprintf("%s_%d", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()), atomic.AddInt64(&dbSeq, 1))
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

func i64(v int64) *int64 { return &v }
func iptr(v int) *int    { return &v }
func bptr(v bool) *bool  { return &v }

func bigPtr(v int64) *model.BigInt {
	b := model.BigIntFromInt64(v)
	return &b
}

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()
	ended := &model.Game{
		ID: "1", GameNumber: 1, Status: model.GameStatusEnded,
		TotalTickets: 10, TokenBalance: model.BigIntFromInt64(1000),
		WinnerProphetIndex: iptr(0), EndTotalTickets: i64(10), WinningTicketsAtEnd: i64(4),
		TokenBalanceAtEnd: bigPtr(1000),
	}
	started := &model.Game{ID: "2", GameNumber: 2, Status: model.GameStatusStarted, TotalTickets: 5, TokenBalance: model.BigIntFromInt64(500)}
	require.NoError(t, db.Create(ended).Error)
	require.NoError(t, db.Create(started).Error)
	require.NoError(t, db.Create(&[]*model.Prophet{
		{ID: model.ProphetID("2", 0), GameID: "2", ProphetIndex: 0, PlayerAddress: prophetA, IsAlive: true, IsFree: true, Role: model.RoleProphet, Accolites: 3},
		{ID: model.ProphetID("2", 1), GameID: "2", ProphetIndex: 1, PlayerAddress: prophetB, IsAlive: true, IsFree: true, Role: model.RoleProphet, Accolites: 2},
	}).Error)
	require.NoError(t, db.Create(&model.Acolyte{ID: model.HolderID("1", holder), GameID: "1", OwnerAddress: holder, ProphetIndex: 0, TicketCount: 2}).Error)
	require.NoError(t, db.Create(&model.GameEvent{
		ID: "0xabc-1", GameID: "2", Type: model.EventMiracleAttempted,
		ProphetIndex: iptr(0), Success: bptr(true),
		BlockNumber: 100, LogIndex: 1, TransactionHash: "0x01",
		Args: datatypes.JSON(`{"isSuccess":true,"currentProphetTurn":0}`),
	}).Error)
	require.NoError(t, db.Create(&model.Config{ID: model.ConfigID, NumberOfProphets: iptr(4), UpdatedBlock: 90}).Error)
	require.NoError(t, db.Create(&model.Checkpoint{ID: "8453", BlockNumber: 100, LogIndex: 1, BlockHash: "0xabc"}).Error)
}

type fakeProfiles struct {
	profiles map[string]interfaces.Profile
	err      error
}

func (f *fakeProfiles) LookupProfiles(_ context.Context, addresses []string) (map[string]interfaces.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]interfaces.Profile{}
	for _, a := range addresses {
		if p, ok := f.profiles[model.NormalizeAddress(a)]; ok {
			out[model.NormalizeAddress(a)] = p
		}
	}
	return out, nil
}

type fakeFeed struct {
	since float64
}

func (f *fakeFeed) Recent(_ context.Context, gameID string, since float64) ([]interfaces.GameChange, error) {
	f.since = since
	return []interfaces.GameChange{{GameID: gameID, Event: "CurrentTurn", BlockNumber: 101}}, nil
}

type testServer struct {
	router *gin.Engine
	feed   *fakeFeed
}

func newTestServer(t *testing.T, profiles interfaces.ProfileLookup) *testServer {
	t.Helper()
	db := newTestDB(t)
	seed(t, db)
	log := newTestLogger()
	games := service.NewGameQueryService(repository.NewGameQueryRepository(db), profiles, log)
	projection := service.NewProjectionService(repository.NewProjectionRepository(db), nil, 8453, log)
	feed := &fakeFeed{}
	r := NewRouter(Handlers{
		Games:   NewGameHandler(games, feed, log),
		Holders: NewHolderHandler(games, log),
		Status:  NewStatusHandler(projection, 8453, log),
		Metrics: metrics.New(),
	}, log)
	return &testServer{router: r, feed: feed}
}

func (s *testServer) get(t *testing.T, path string, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.router.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w
}

func TestListGames(t *testing.T) {
	s := newTestServer(t, nil)
	var body struct {
		Total int64 `json:"total"`
		Items []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"items"`
	}
	w := s.get(t, "/api/games", &body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), body.Total)
	require.Len(t, body.Items, 2)
	assert.Equal(t, "2", body.Items[0].ID)

	w = s.get(t, "/api/games?status=ended", &body)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "1", body.Items[0].ID)

	var paged struct {
		Page     int `json:"page"`
		PageSize int `json:"pageSize"`
	}
	w = s.get(t, "/api/games?page=0&page_size=500", &paged)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, paged.Page)
	assert.Equal(t, 20, paged.PageSize)
}

func TestGetConfig(t *testing.T) {
	s := newTestServer(t, nil)
	var body struct {
		ID               string `json:"id"`
		NumberOfProphets *int   `json:"numberOfProphets"`
	}
	w := s.get(t, "/api/config", &body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.ConfigID, body.ID)
	require.NotNil(t, body.NumberOfProphets)
	assert.Equal(t, 4, *body.NumberOfProphets)
}

func TestCurrentGameAndDetail(t *testing.T) {
	s := newTestServer(t, &fakeProfiles{profiles: map[string]interfaces.Profile{
		prophetA: {Username: strPtr("seer")},
	}})
	var body struct {
		Game     model.Game `json:"game"`
		Prophets []struct {
			ProphetIndex int     `json:"prophetIndex"`
			InfluencePct float64 `json:"influencePct"`
		} `json:"prophets"`
		Events []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"events"`
	}
	w := s.get(t, "/api/games/current", &body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "2", body.Game.ID)
	require.Len(t, body.Prophets, 2)
	assert.Equal(t, 60.0, body.Prophets[0].InfluencePct)
	assert.Equal(t, 40.0, body.Prophets[1].InfluencePct)
	require.Len(t, body.Events, 1)
	assert.Contains(t, body.Events[0].Text, "@seer")

	w = s.get(t, "/api/games/1", &body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.GameStatusEnded, body.Game.Status)

	w = s.get(t, "/api/games/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func strPtr(s string) *string { return &s }

func TestGameEvents(t *testing.T) {
	s := newTestServer(t, nil)
	var body struct {
		Items []struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"items"`
	}
	w := s.get(t, "/api/games/2/events?limit=10", &body)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "0xabc-1", body.Items[0].ID)
	assert.Contains(t, body.Items[0].Text, "Prophet 0")

	assert.Equal(t, http.StatusBadRequest, s.get(t, "/api/games/2/events?limit=-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.get(t, "/api/games/7/events", nil).Code)
}

func TestPriorGames(t *testing.T) {
	s := newTestServer(t, nil)
	var body struct {
		Items []struct {
			ID         string `json:"id"`
			WinningPct int    `json:"winningPct"`
		} `json:"items"`
	}
	w := s.get(t, "/api/games/prior", &body)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "1", body.Items[0].ID)
	assert.Equal(t, 40, body.Items[0].WinningPct)
}

func TestGameChanges(t *testing.T) {
	s := newTestServer(t, nil)
	var body struct {
		Items []interfaces.GameChange `json:"items"`
	}
	w := s.get(t, "/api/games/2/changes?since=42", &body)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "2", body.Items[0].GameID)
	assert.Equal(t, 42.0, s.feed.since)

	assert.Equal(t, http.StatusBadRequest, s.get(t, "/api/games/2/changes?since=x", nil).Code)
}

func TestGetHolder(t *testing.T) {
	s := newTestServer(t, nil)
	var body struct {
		Address  string `json:"address"`
		Holdings []struct {
			GameID         string  `json:"gameId"`
			Winning        bool    `json:"winning"`
			Claimed        bool    `json:"claimed"`
			EstimatedValue *string `json:"estimatedValue"`
		} `json:"holdings"`
	}
	w := s.get(t, "/api/holders/0xCCCC000000000000000000000000000000000003", &body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, holder, body.Address)
	require.Len(t, body.Holdings, 1)
	assert.True(t, body.Holdings[0].Winning)
	assert.False(t, body.Holdings[0].Claimed)
	require.NotNil(t, body.Holdings[0].EstimatedValue)
	assert.Equal(t, "200", *body.Holdings[0].EstimatedValue)

	assert.Equal(t, http.StatusBadRequest, s.get(t, "/api/holders/nope", nil).Code)
}

func TestGetProfiles(t *testing.T) {
	s := newTestServer(t, &fakeProfiles{profiles: map[string]interfaces.Profile{
		prophetA: {Username: strPtr("seer")},
	}})
	var body struct {
		Users map[string]interfaces.Profile `json:"users"`
	}
	w := s.get(t, "/api/profiles?addresses="+prophetA+",bad,"+prophetB, &body)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body.Users, 1)
	assert.Equal(t, "seer", *body.Users[prophetA].Username)

	assert.Equal(t, http.StatusBadRequest, s.get(t, "/api/profiles", nil).Code)

	var disabledBody struct {
		Users map[string]interfaces.Profile `json:"users"`
	}
	disabled := newTestServer(t, nil)
	w = disabled.get(t, "/api/profiles?addresses="+prophetA, &disabledBody)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, disabledBody.Users)
	assert.Empty(t, disabledBody.Users)
}

func TestGetProfilesUpstreamErrors(t *testing.T) {
	s := newTestServer(t, &fakeProfiles{err: &neynar.APIError{Status: http.StatusTooManyRequests, Body: "slow down"}})
	w := s.get(t, "/api/profiles?addresses="+prophetA, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	s = newTestServer(t, &fakeProfiles{err: errors.New("dial tcp: refused")})
	w = s.get(t, "/api/profiles?addresses="+prophetA, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	s = newTestServer(t, &fakeProfiles{err: neynar.ErrTooManyAddresses})
	w = s.get(t, "/api/profiles?addresses="+prophetA, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)
	var body struct {
		Status  string `json:"status"`
		ChainID uint64 `json:"chainId"`
		Block   int64  `json:"block"`
	}
	w := s.get(t, "/healthz", &body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, uint64(8453), body.ChainID)
	assert.Equal(t, int64(100), body.Block)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	w = s.get(t, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := newTestServer(t, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	s.router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(requestIDHeader))
}

type brokenCheckpoint struct{}

func (brokenCheckpoint) Checkpoint(context.Context) (*model.Checkpoint, error) {
	return nil, errors.New("connection refused")
}

func TestHealthzUnavailable(t *testing.T) {
	h := NewStatusHandler(brokenCheckpoint{}, 1, newTestLogger())
	r := gin.New()
	r.GET("/healthz", h.Healthz)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
