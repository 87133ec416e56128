package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Phenomenon game lifecycle events
const phenomenonABI = `[
	{"type":"event","name":"ProphetEnteredGame","anonymous":false,"inputs":[
		{"indexed":true,"name":"prophetNumber","type":"uint256"},
		{"indexed":true,"name":"sender","type":"address"},
		{"indexed":true,"name":"gameNumber","type":"uint256"}]},
	{"type":"event","name":"GameStarted","anonymous":false,"inputs":[
		{"indexed":true,"name":"gameNumber","type":"uint256"}]},
	{"type":"event","name":"GameEnded","anonymous":false,"inputs":[
		{"indexed":true,"name":"gameNumber","type":"uint256"},
		{"indexed":false,"name":"tokensPerTicket","type":"uint256"},
		{"indexed":true,"name":"currentProphetTurn","type":"uint256"}]},
	{"type":"event","name":"GameReset","anonymous":false,"inputs":[
		{"indexed":true,"name":"newGameNumber","type":"uint256"}]},
	{"type":"event","name":"CurrentTurn","anonymous":false,"inputs":[
		{"indexed":true,"name":"nextProphetTurn","type":"uint256"}]},
	{"type":"event","name":"NumberOfProphetsSet","anonymous":false,"inputs":[
		{"indexed":false,"name":"numberOfProphets","type":"uint256"}]}
]`

// GameplayEngine turn actions
const gameplayEngineABI = `[
	{"type":"event","name":"MiracleAttempted","anonymous":false,"inputs":[
		{"indexed":true,"name":"isSuccess","type":"bool"},
		{"indexed":true,"name":"currentProphetTurn","type":"uint256"}]},
	{"type":"event","name":"SmiteAttempted","anonymous":false,"inputs":[
		{"indexed":true,"name":"target","type":"uint256"},
		{"indexed":true,"name":"isSuccess","type":"bool"},
		{"indexed":true,"name":"currentProphetTurn","type":"uint256"}]},
	{"type":"event","name":"Accusation","anonymous":false,"inputs":[
		{"indexed":true,"name":"isSuccess","type":"bool"},
		{"indexed":false,"name":"targetIsAlive","type":"bool"},
		{"indexed":true,"name":"currentProphetTurn","type":"uint256"},
		{"indexed":true,"name":"_target","type":"uint256"}]},
	{"type":"event","name":"ForceMiracleTriggered","anonymous":false,"inputs":[
		{"indexed":true,"name":"currentProphetTurn","type":"uint256"}]}
]`

// TicketEngine ticket economy plus the prophet data read
const ticketEngineABI = `[
	{"type":"event","name":"gainReligion","anonymous":false,"inputs":[
		{"indexed":true,"name":"_target","type":"uint256"},
		{"indexed":true,"name":"numTicketsBought","type":"uint256"},
		{"indexed":true,"name":"totalPrice","type":"uint256"},
		{"indexed":false,"name":"sender","type":"address"}]},
	{"type":"event","name":"religionLost","anonymous":false,"inputs":[
		{"indexed":true,"name":"_target","type":"uint256"},
		{"indexed":true,"name":"numTicketsSold","type":"uint256"},
		{"indexed":true,"name":"totalPrice","type":"uint256"},
		{"indexed":false,"name":"sender","type":"address"}]},
	{"type":"event","name":"ticketsClaimed","anonymous":false,"inputs":[
		{"indexed":true,"name":"player","type":"address"},
		{"indexed":true,"name":"tokensSent","type":"uint256"},
		{"indexed":true,"name":"gameNumber","type":"uint256"}]},
	{"type":"event","name":"ticketSalesEnabled","anonymous":false,"inputs":[
		{"indexed":false,"name":"_ticketSalesEnabled","type":"bool"}]},
	{"type":"function","name":"getProphetData","stateMutability":"view","inputs":[
		{"name":"prophetNum","type":"uint256"}],"outputs":[
		{"name":"","type":"address"},
		{"name":"","type":"bool"},
		{"name":"","type":"bool"},
		{"name":"","type":"uint256"}]}
]`

var (
	PhenomenonABI     = mustParseABI(phenomenonABI)
	GameplayEngineABI = mustParseABI(gameplayEngineABI)
	TicketEngineABI   = mustParseABI(ticketEngineABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("chain: invalid abi: " + err.Error())
	}
	return parsed
}
