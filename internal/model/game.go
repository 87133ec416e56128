package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Game status values. "oracle" is a display label reserved by the UI, no handler stores it.
const (
	GameStatusOpen    = "open"
	GameStatusStarted = "started"
	GameStatusOracle  = "oracle"
	GameStatusEnded   = "ended"
)

// Prophet roles
const (
	RoleProphet    = "prophet"
	RoleHighPriest = "highPriest"
)

// ConfigID singleton config row id
const ConfigID = "0"

// GameEvent type tags
const (
	EventProphetEnteredGame    = "prophetEnteredGame"
	EventGameStarted           = "gameStarted"
	EventGameEnded             = "gameEnded"
	EventGameReset             = "gameReset"
	EventMiracleAttempted      = "miracleAttempted"
	EventSmiteAttempted        = "smiteAttempted"
	EventAccusation            = "accusation"
	EventForceMiracleTriggered = "forceMiracleTriggered"
	EventGainReligion          = "gainReligion"
	EventReligionLost          = "religionLost"
	EventTicketsClaimed        = "ticketsClaimed"
)

// Config singleton global settings from the Phenomenon contract
type Config struct {
	ID                 string    `gorm:"column:id;primaryKey;type:varchar(8)" json:"id"`
	NumberOfProphets   *int      `gorm:"column:number_of_prophets" json:"numberOfProphets"`     // required prophets for new games
	TicketSalesEnabled *bool     `gorm:"column:ticket_sales_enabled" json:"ticketSalesEnabled"` // last ticketSalesEnabled value
	UpdatedBlock       int64     `gorm:"column:updated_block;not null" json:"updatedBlock"`
	UpdatedAt          time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (Config) TableName() string { return "config" }

// Game one row per game number
type Game struct {
	ID                  string    `gorm:"column:id;primaryKey;type:varchar(80)" json:"id"` // game number as string
	GameNumber          int64     `gorm:"column:game_number;not null;index:idx_game_number" json:"gameNumber"`
	Status              string    `gorm:"column:status;type:varchar(16);not null;index:idx_game_status" json:"status"`
	CurrentProphetTurn  int       `gorm:"column:current_prophet_turn;not null" json:"currentProphetTurn"`
	ProphetsRemaining   int       `gorm:"column:prophets_remaining;not null" json:"prophetsRemaining"` // prophets registered so far
	ProphetsRequired    *int      `gorm:"column:prophets_required" json:"prophetsRequired"`            // stamped from Config at creation
	TotalTickets        int64     `gorm:"column:total_tickets;not null" json:"totalTickets"`
	TokenBalance        BigInt    `gorm:"column:token_balance;not null" json:"tokenBalance"`
	StartBlock          *int64    `gorm:"column:start_block" json:"startBlock"`
	EndBlock            *int64    `gorm:"column:end_block" json:"endBlock"`
	WinnerProphetIndex  *int      `gorm:"column:winner_prophet_index" json:"winnerProphetIndex"`
	EndTotalTickets     *int64    `gorm:"column:end_total_tickets" json:"endTotalTickets"`          // snapshot at game end
	WinningTicketsAtEnd *int64    `gorm:"column:winning_tickets_at_end" json:"winningTicketsAtEnd"` // winner's backing at game end
	TokenBalanceAtEnd   *BigInt   `gorm:"column:token_balance_at_end" json:"tokenBalanceAtEnd"`     // pool at game end, basis for payout estimates
	CreatedAt           time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt           time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (Game) TableName() string { return "game" }

// Prophet one row per (game, prophet index)
type Prophet struct {
	ID              string    `gorm:"column:id;primaryKey;type:varchar(96)" json:"id"` // gameId-prophetIndex
	GameID          string    `gorm:"column:game_id;type:varchar(80);not null;index:idx_prophet_game;uniqueIndex:uk_prophet_game_index" json:"gameId"`
	ProphetIndex    int       `gorm:"column:prophet_index;not null;uniqueIndex:uk_prophet_game_index" json:"prophetIndex"`
	PlayerAddress   string    `gorm:"column:player_address;type:varchar(42);not null;index:idx_prophet_player" json:"playerAddress"`
	IsAlive         bool      `gorm:"column:is_alive;not null" json:"isAlive"`
	IsFree          bool      `gorm:"column:is_free;not null" json:"isFree"` // false = jailed
	Role            string    `gorm:"column:role;type:varchar(16);not null" json:"role"`
	Accolites       int64     `gorm:"column:accolites;not null" json:"accolites"`      // tickets backing this prophet
	HighPriests     int64     `gorm:"column:high_priests;not null" json:"highPriests"` // high priests backing this prophet
	TokensPerTicket *BigInt   `gorm:"column:tokens_per_ticket" json:"tokensPerTicket"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"-"`
	UpdatedAt       time.Time `gorm:"column:updated_at" json:"-"`
}

func (Prophet) TableName() string { return "prophet" }

// Acolyte ticket holding, one row per (game, owner)
type Acolyte struct {
	ID           string    `gorm:"column:id;primaryKey;type:varchar(128)" json:"id"` // gameId-ownerAddress
	GameID       string    `gorm:"column:game_id;type:varchar(80);not null;index:idx_acolyte_game" json:"gameId"`
	OwnerAddress string    `gorm:"column:owner_address;type:varchar(42);not null;index:idx_acolyte_owner" json:"ownerAddress"`
	ProphetIndex int       `gorm:"column:prophet_index;not null" json:"prophetIndex"`
	TicketCount  int64     `gorm:"column:ticket_count;not null" json:"ticketCount"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"-"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"-"`
}

func (Acolyte) TableName() string { return "acolyte" }

// TicketClaim winner-side payout claim, written once per (game, owner)
type TicketClaim struct {
	ID              string    `gorm:"column:id;primaryKey;type:varchar(128)" json:"id"` // gameId-ownerAddress
	GameID          string    `gorm:"column:game_id;type:varchar(80);not null;index:idx_claim_game" json:"gameId"`
	OwnerAddress    string    `gorm:"column:owner_address;type:varchar(42);not null;index:idx_claim_owner" json:"ownerAddress"`
	TokensClaimed   BigInt    `gorm:"column:tokens_claimed;not null" json:"tokensClaimed"`
	BlockNumber     int64     `gorm:"column:block_number;not null" json:"blockNumber"`
	TransactionHash string    `gorm:"column:transaction_hash;type:varchar(66);not null" json:"transactionHash"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"-"`
}

func (TicketClaim) TableName() string { return "ticket_claim" }

// GameEvent narrative/audit log row, inserted once per chain log and never updated
type GameEvent struct {
	ID              string         `gorm:"column:id;primaryKey;type:varchar(96)" json:"id"` // blockHash-logIndex
	GameID          string         `gorm:"column:game_id;type:varchar(80);not null;index:idx_event_game" json:"gameId"`
	Type            string         `gorm:"column:type;type:varchar(32);not null" json:"type"`
	ProphetIndex    *int           `gorm:"column:prophet_index" json:"prophetIndex"`
	TargetIndex     *int           `gorm:"column:target_index" json:"targetIndex"`
	Success         *bool          `gorm:"column:success" json:"success"`
	TargetIsAlive   *bool          `gorm:"column:target_is_alive" json:"targetIsAlive"` // accusation: true = jailed, false = executed
	ActorAddress    *string        `gorm:"column:actor_address;type:varchar(42)" json:"actorAddress"`
	BlockNumber     int64          `gorm:"column:block_number;not null;index:idx_event_block" json:"blockNumber"`
	LogIndex        int            `gorm:"column:log_index;not null" json:"logIndex"`
	TransactionHash string         `gorm:"column:transaction_hash;type:varchar(66);not null" json:"transactionHash"`
	Args            datatypes.JSON `gorm:"column:args" json:"args,omitempty"` // decoded event arguments
	CreatedAt       time.Time      `gorm:"column:created_at" json:"-"`
}

func (GameEvent) TableName() string { return "game_event" }

// GameID canonical game id for a game number
func GameID(gameNumber int64) string {
	return strconv.FormatInt(gameNumber, 10)
}

// ProphetID composite key gameId-index
func ProphetID(gameID string, prophetIndex int) string {
	return fmt.Sprintf("%s-%d", gameID, prophetIndex)
}

// HolderID composite key gameId-address, used by Acolyte and TicketClaim
func HolderID(gameID, address string) string {
	return gameID + "-" + NormalizeAddress(address)
}

// NormalizeAddress lower-cased hex address; every read and write goes through it
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// AllModels tables in migration order
func AllModels() []interface{} {
	return []interface{}{
		&Config{},
		&Game{},
		&Prophet{},
		&Acolyte{},
		&TicketClaim{},
		&GameEvent{},
		&Checkpoint{},
	}
}
