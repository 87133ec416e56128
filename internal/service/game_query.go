package service

import (
	"context"
	"errors"
	"math"
	"math/big"

	"PhenomenonIndexer/internal/interfaces"
	"PhenomenonIndexer/internal/model"
	"PhenomenonIndexer/internal/repository"

	"github.com/sirupsen/logrus"
)

var (
	// ErrGameNotFound no game row for the requested id
	ErrGameNotFound = errors.New("game not found")
	// ErrProfilesDisabled no profile provider configured
	ErrProfilesDisabled = errors.New("profile lookup disabled")
)

// recent events embedded in a game detail
const detailEventLimit = 100

// GameQueryService read side behind the HTTP API
type GameQueryService struct {
	repo     repository.GameQueryRepository
	profiles interfaces.ProfileLookup
	logger   *logrus.Logger
}

// NewGameQueryService profiles may be nil
func NewGameQueryService(repo repository.GameQueryRepository, profiles interfaces.ProfileLookup, logger *logrus.Logger) *GameQueryService {
	return &GameQueryService{
		repo:     repo,
		profiles: profiles,
		logger:   logger,
	}
}

// ProphetView prophet row plus display share of the game's tickets
type ProphetView struct {
	*model.Prophet
	InfluencePct float64 `json:"influencePct"`
}

// NarratedEvent event row plus its action-log line
type NarratedEvent struct {
	*model.GameEvent
	Text string `json:"text,omitempty"`
}

// GameDetail one game with everything the game screen shows
type GameDetail struct {
	Game     *model.Game          `json:"game"`
	Prophets []ProphetView        `json:"prophets"`
	Acolytes []*model.Acolyte     `json:"acolytes"`
	Claims   []*model.TicketClaim `json:"ticketClaims"`
	Events   []NarratedEvent      `json:"events"`
}

type GameListResult struct {
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
	Total    int64         `json:"total"`
	Items    []*model.Game `json:"items"`
}

// PriorGame ended game summary
type PriorGame struct {
	*model.Game
	WinningPct int `json:"winningPct"` // winner's share of tickets at end, whole percent
}

// Holding one acolyte row with claim status for an ended game
type Holding struct {
	*model.Acolyte
	GameStatus     string        `json:"gameStatus"`
	Winning        bool          `json:"winning"`
	Claimed        bool          `json:"claimed"`
	EstimatedValue *model.BigInt `json:"estimatedValue,omitempty"` // unclaimed winning tickets only
}

type HolderView struct {
	Address  string               `json:"address"`
	Holdings []Holding            `json:"holdings"`
	Claims   []*model.TicketClaim `json:"claims"`
}

func (s *GameQueryService) ListGames(ctx context.Context, status string, page, pageSize int) (*GameListResult, error) {
	page, pageSize = repository.ClampPage(page, pageSize)
	games, total, err := s.repo.ListGames(ctx, status, page, pageSize)
	if err != nil {
		return nil, err
	}
	if games == nil {
		games = []*model.Game{}
	}
	return &GameListResult{Page: page, PageSize: pageSize, Total: total, Items: games}, nil
}

// Config global settings; before the first config event only the id is set
func (s *GameQueryService) Config(ctx context.Context) (*model.Config, error) {
	cfg, err := s.repo.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return &model.Config{ID: model.ConfigID}, nil
	}
	return cfg, nil
}

// CurrentGame detail of the highest-numbered game
func (s *GameQueryService) CurrentGame(ctx context.Context) (*GameDetail, error) {
	g, err := s.repo.LatestGame(ctx)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGameNotFound
	}
	return s.detail(ctx, g)
}

func (s *GameQueryService) GetGame(ctx context.Context, gameID string) (*GameDetail, error) {
	g, err := s.repo.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGameNotFound
	}
	return s.detail(ctx, g)
}

func (s *GameQueryService) detail(ctx context.Context, g *model.Game) (*GameDetail, error) {
	prophets, err := s.repo.ListProphets(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	acolytes, err := s.repo.ListAcolytes(ctx, g.ID, 0)
	if err != nil {
		return nil, err
	}
	claims, err := s.repo.ListClaims(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, g.ID, detailEventLimit)
	if err != nil {
		return nil, err
	}

	views := make([]ProphetView, 0, len(prophets))
	for _, p := range prophets {
		views = append(views, ProphetView{Prophet: p, InfluencePct: InfluencePct(p.Accolites, g.TotalTickets)})
	}
	return &GameDetail{
		Game:     g,
		Prophets: views,
		Acolytes: acolytes,
		Claims:   claims,
		Events:   narrate(events, s.prophetNames(ctx, prophets)),
	}, nil
}

// Events narrated feed, newest first
func (s *GameQueryService) Events(ctx context.Context, gameID string, limit int) ([]NarratedEvent, error) {
	g, err := s.repo.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGameNotFound
	}
	prophets, err := s.repo.ListProphets(ctx, gameID)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, gameID, limit)
	if err != nil {
		return nil, err
	}
	return narrate(events, s.prophetNames(ctx, prophets)), nil
}

func narrate(events []*model.GameEvent, name NameFunc) []NarratedEvent {
	out := make([]NarratedEvent, 0, len(events))
	for _, e := range events {
		out = append(out, NarratedEvent{GameEvent: e, Text: Narrate(e, name, events)})
	}
	return out
}

// prophetNames "@username" when a profile is known, "Prophet N" otherwise
func (s *GameQueryService) prophetNames(ctx context.Context, prophets []*model.Prophet) NameFunc {
	if s.profiles == nil || len(prophets) == 0 {
		return DefaultProphetName
	}
	addrs := make([]string, 0, len(prophets))
	for _, p := range prophets {
		addrs = append(addrs, p.PlayerAddress)
	}
	profiles, err := s.profiles.LookupProfiles(ctx, addrs)
	if err != nil {
		s.logger.WithError(err).Warn("profile lookup failed, using prophet numbers")
		return DefaultProphetName
	}
	byIndex := make(map[int]string, len(prophets))
	for _, p := range prophets {
		if prof, ok := profiles[model.NormalizeAddress(p.PlayerAddress)]; ok && prof.Username != nil && *prof.Username != "" {
			byIndex[p.ProphetIndex] = "@" + *prof.Username
		}
	}
	return func(idx int) string {
		if n, ok := byIndex[idx]; ok {
			return n
		}
		return DefaultProphetName(idx)
	}
}

// PriorGames ended games, newest first
func (s *GameQueryService) PriorGames(ctx context.Context, page, pageSize int) ([]PriorGame, error) {
	games, _, err := s.repo.ListGames(ctx, model.GameStatusEnded, page, pageSize)
	if err != nil {
		return nil, err
	}
	out := make([]PriorGame, 0, len(games))
	for _, g := range games {
		out = append(out, PriorGame{Game: g, WinningPct: WinningPct(g)})
	}
	return out, nil
}

// Holder all holdings and claims of one address across games
func (s *GameQueryService) Holder(ctx context.Context, address string) (*HolderView, error) {
	addr := model.NormalizeAddress(address)
	rows, err := s.repo.ListHoldingsByOwner(ctx, addr)
	if err != nil {
		return nil, err
	}
	claims, err := s.repo.ListClaimsByOwner(ctx, addr)
	if err != nil {
		return nil, err
	}
	claimed := make(map[string]bool, len(claims))
	for _, c := range claims {
		claimed[c.GameID] = true
	}

	games := make(map[string]*model.Game)
	holdings := make([]Holding, 0, len(rows))
	for _, a := range rows {
		g, ok := games[a.GameID]
		if !ok {
			if g, err = s.repo.GetGame(ctx, a.GameID); err != nil {
				return nil, err
			}
			games[a.GameID] = g
		}
		h := Holding{Acolyte: a, Claimed: claimed[a.GameID]}
		if g != nil {
			h.GameStatus = g.Status
			h.Winning = g.Status == model.GameStatusEnded && g.WinnerProphetIndex != nil && *g.WinnerProphetIndex == a.ProphetIndex
			if h.Winning && !h.Claimed {
				h.EstimatedValue = EstimatedPayout(g, a.TicketCount)
			}
		}
		holdings = append(holdings, h)
	}
	if claims == nil {
		claims = []*model.TicketClaim{}
	}
	return &HolderView{Address: addr, Holdings: holdings, Claims: claims}, nil
}

// Profiles social profiles keyed by lower-cased address
func (s *GameQueryService) Profiles(ctx context.Context, addresses []string) (map[string]interfaces.Profile, error) {
	if s.profiles == nil {
		return nil, ErrProfilesDisabled
	}
	return s.profiles.LookupProfiles(ctx, addresses)
}

// InfluencePct supporters as a percentage of total tickets, two decimals
func InfluencePct(supporters, totalTickets int64) float64 {
	if totalTickets <= 0 {
		return 0
	}
	return math.Round(float64(supporters)*10000/float64(totalTickets)) / 100
}

// WinningPct winner's share of the ticket supply frozen at game end, whole percent
func WinningPct(g *model.Game) int {
	if g.EndTotalTickets == nil || *g.EndTotalTickets <= 0 || g.WinningTicketsAtEnd == nil {
		return 0
	}
	bp := *g.WinningTicketsAtEnd * 10000 / *g.EndTotalTickets
	return int(math.Round(float64(bp) / 100))
}

// EstimatedPayout pool balance at game end pro rata for tickets held. Claims and late
// trades move the live balance, so only the end snapshot is used.
func EstimatedPayout(g *model.Game, tickets int64) *model.BigInt {
	if g.EndTotalTickets == nil || *g.EndTotalTickets <= 0 || g.TokenBalanceAtEnd == nil {
		return nil
	}
	v := new(big.Int).Mul(g.TokenBalanceAtEnd.Big(), big.NewInt(tickets))
	v.Quo(v, big.NewInt(*g.EndTotalTickets))
	out := model.NewBigInt(v)
	return &out
}
