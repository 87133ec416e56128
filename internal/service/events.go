package service

import (
	"fmt"
	"math/big"
	"strings"
)

// Source contracts
const (
	ContractPhenomenon     = "Phenomenon"
	ContractGameplayEngine = "GameplayEngine"
	ContractTicketEngine   = "TicketEngine"
)

// LogMeta position and provenance of one chain log
type LogMeta struct {
	Contract    string // which source contract emitted it
	Name        string // ABI event name
	BlockNumber uint64
	BlockHash   string
	TxHash      string
	LogIndex    uint
}

// EventID stable row id for the log, independent of event content
func (m LogMeta) EventID() string {
	return fmt.Sprintf("%s-%d", strings.ToLower(m.BlockHash), m.LogIndex)
}

// GameEventID row id for a log fanned out to several games
func (m LogMeta) GameEventID(gameID string) string {
	return m.EventID() + "-" + gameID
}

// ChainEvent a decoded log; Payload is one of the event structs below
type ChainEvent struct {
	LogMeta
	Payload interface{}
}

// Phenomenon

type ProphetEnteredGame struct {
	GameNumber   int64  `json:"gameNumber"`
	ProphetIndex int    `json:"prophetNumber"`
	Sender       string `json:"sender"`
}

type GameStarted struct {
	GameNumber int64 `json:"gameNumber"`
}

type GameEnded struct {
	GameNumber      int64    `json:"gameNumber"`
	TokensPerTicket *big.Int `json:"tokensPerTicket"`
	WinnerIndex     int      `json:"currentProphetTurn"` // the prophet whose turn ended the game is the winner
}

type GameReset struct {
	NewGameNumber int64 `json:"newGameNumber"`
}

type CurrentTurn struct {
	NextProphetTurn int `json:"nextProphetTurn"`
}

// NumberOfProphetsSet required prophet count for games created from now on
type NumberOfProphetsSet struct {
	NumberOfProphets int `json:"numberOfProphets"`
}

// GameplayEngine

type MiracleAttempted struct {
	Success      bool `json:"isSuccess"`
	ProphetIndex int  `json:"currentProphetTurn"`
}

type SmiteAttempted struct {
	Success      bool `json:"isSuccess"`
	ProphetIndex int  `json:"currentProphetTurn"`
	TargetIndex  int  `json:"target"`
}

// Accusation TargetStillActive decides confine (true) vs eliminate (false) on success
type Accusation struct {
	Success           bool `json:"isSuccess"`
	TargetStillActive bool `json:"targetIsAlive"`
	ProphetIndex      int  `json:"currentProphetTurn"`
	TargetIndex       int  `json:"target"`
}

type ForceMiracleTriggered struct {
	ProphetIndex int `json:"currentProphetTurn"`
}

// TicketEngine

type GainReligion struct {
	TargetIndex int      `json:"target"`
	Tickets     int64    `json:"numTicketsBought"`
	TotalPrice  *big.Int `json:"totalPrice"`
	Buyer       string   `json:"sender"`
}

type ReligionLost struct {
	TargetIndex int      `json:"target"`
	Tickets     int64    `json:"numTicketsSold"`
	TotalPrice  *big.Int `json:"totalPrice"`
	Seller      string   `json:"sender"`
}

type TicketsClaimed struct {
	GameNumber int64    `json:"gameNumber"`
	Player     string   `json:"player"`
	TokensSent *big.Int `json:"tokensSent"`
}

type TicketSalesEnabled struct {
	Enabled bool `json:"ticketSalesEnabled"`
}
