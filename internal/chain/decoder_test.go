package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"PhenomenonIndexer/internal/model"
	"PhenomenonIndexer/internal/service"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	phenomenonAddr = common.HexToAddress("0x2472FCd582b6f48D4977b6b1AD44Ad7a0B444827")
	gameplayAddr   = common.HexToAddress("0xf952f23061031d9e8561C5ca12381C2eE04919F3")
	ticketAddr     = common.HexToAddress("0x18A7DB39F6FF7F64575E768d9dE0cB56D787ca29")
	player         = common.HexToAddress("0xAbCdEf0000000000000000000000000000001234")
)

func newTestDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := NewDecoder(Addresses{
		Phenomenon:     phenomenonAddr.Hex(),
		GameplayEngine: gameplayAddr.Hex(),
		TicketEngine:   ticketAddr.Hex(),
	})
	require.NoError(t, err)
	return d
}

// buildLog encodes indexed values as topics and the rest as data
func buildLog(t *testing.T, contract common.Address, parsed abi.ABI, name string, indexed []interface{}, data ...interface{}) types.Log {
	t.Helper()
	ev, ok := parsed.Events[name]
	require.True(t, ok, name)
	topics := []common.Hash{ev.ID}
	for _, v := range indexed {
		hs, err := abi.MakeTopics([]interface{}{v})
		require.NoError(t, err)
		topics = append(topics, hs[0][0])
	}
	var raw []byte
	if len(data) > 0 {
		var err error
		raw, err = ev.Inputs.NonIndexed().Pack(data...)
		require.NoError(t, err)
	}
	return types.Log{
		Address:     contract,
		Topics:      topics,
		Data:        raw,
		BlockNumber: 37667800,
		BlockHash:   common.HexToHash("0xABCDEF"),
		TxHash:      common.HexToHash("0x1234"),
		Index:       7,
	}
}

func TestDecodeEvents(t *testing.T) {
	d := newTestDecoder(t)
	wantAddr := model.NormalizeAddress(player.Hex())
	cases := []struct {
		name     string
		log      types.Log
		contract string
		want     interface{}
	}{
		{
			"ProphetEnteredGame",
			buildLog(t, phenomenonAddr, PhenomenonABI, "ProphetEnteredGame", []interface{}{big.NewInt(2), player, big.NewInt(5)}),
			service.ContractPhenomenon,
			service.ProphetEnteredGame{GameNumber: 5, ProphetIndex: 2, Sender: wantAddr},
		},
		{
			"GameStarted",
			buildLog(t, phenomenonAddr, PhenomenonABI, "GameStarted", []interface{}{big.NewInt(5)}),
			service.ContractPhenomenon,
			service.GameStarted{GameNumber: 5},
		},
		{
			"GameEnded",
			buildLog(t, phenomenonAddr, PhenomenonABI, "GameEnded", []interface{}{big.NewInt(5), big.NewInt(1)}, big.NewInt(250)),
			service.ContractPhenomenon,
			service.GameEnded{GameNumber: 5, TokensPerTicket: big.NewInt(250), WinnerIndex: 1},
		},
		{
			"GameReset",
			buildLog(t, phenomenonAddr, PhenomenonABI, "GameReset", []interface{}{big.NewInt(6)}),
			service.ContractPhenomenon,
			service.GameReset{NewGameNumber: 6},
		},
		{
			"CurrentTurn",
			buildLog(t, phenomenonAddr, PhenomenonABI, "CurrentTurn", []interface{}{big.NewInt(3)}),
			service.ContractPhenomenon,
			service.CurrentTurn{NextProphetTurn: 3},
		},
		{
			"NumberOfProphetsSet",
			buildLog(t, phenomenonAddr, PhenomenonABI, "NumberOfProphetsSet", nil, big.NewInt(4)),
			service.ContractPhenomenon,
			service.NumberOfProphetsSet{NumberOfProphets: 4},
		},
		{
			"MiracleAttempted",
			buildLog(t, gameplayAddr, GameplayEngineABI, "MiracleAttempted", []interface{}{false, big.NewInt(2)}),
			service.ContractGameplayEngine,
			service.MiracleAttempted{Success: false, ProphetIndex: 2},
		},
		{
			"SmiteAttempted",
			buildLog(t, gameplayAddr, GameplayEngineABI, "SmiteAttempted", []interface{}{big.NewInt(1), true, big.NewInt(0)}),
			service.ContractGameplayEngine,
			service.SmiteAttempted{Success: true, ProphetIndex: 0, TargetIndex: 1},
		},
		{
			"Accusation",
			buildLog(t, gameplayAddr, GameplayEngineABI, "Accusation", []interface{}{true, big.NewInt(0), big.NewInt(2)}, true),
			service.ContractGameplayEngine,
			service.Accusation{Success: true, TargetStillActive: true, ProphetIndex: 0, TargetIndex: 2},
		},
		{
			"ForceMiracleTriggered",
			buildLog(t, gameplayAddr, GameplayEngineABI, "ForceMiracleTriggered", []interface{}{big.NewInt(3)}),
			service.ContractGameplayEngine,
			service.ForceMiracleTriggered{ProphetIndex: 3},
		},
		{
			"gainReligion",
			buildLog(t, ticketAddr, TicketEngineABI, "gainReligion", []interface{}{big.NewInt(1), big.NewInt(3), big.NewInt(900)}, player),
			service.ContractTicketEngine,
			service.GainReligion{TargetIndex: 1, Tickets: 3, TotalPrice: big.NewInt(900), Buyer: wantAddr},
		},
		{
			"religionLost",
			buildLog(t, ticketAddr, TicketEngineABI, "religionLost", []interface{}{big.NewInt(1), big.NewInt(2), big.NewInt(500)}, player),
			service.ContractTicketEngine,
			service.ReligionLost{TargetIndex: 1, Tickets: 2, TotalPrice: big.NewInt(500), Seller: wantAddr},
		},
		{
			"ticketsClaimed",
			buildLog(t, ticketAddr, TicketEngineABI, "ticketsClaimed", []interface{}{player, big.NewInt(1000), big.NewInt(5)}),
			service.ContractTicketEngine,
			service.TicketsClaimed{GameNumber: 5, Player: wantAddr, TokensSent: big.NewInt(1000)},
		},
		{
			"ticketSalesEnabled",
			buildLog(t, ticketAddr, TicketEngineABI, "ticketSalesEnabled", nil, true),
			service.ContractTicketEngine,
			service.TicketSalesEnabled{Enabled: true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := d.Decode(tc.log)
			require.NoError(t, err)
			assert.Equal(t, tc.name, ev.Name)
			assert.Equal(t, tc.contract, ev.Contract)
			assert.Equal(t, uint64(37667800), ev.BlockNumber)
			assert.Equal(t, uint(7), ev.LogIndex)
			assert.Equal(t, tc.log.TxHash.Hex(), ev.TxHash)
			assert.Equal(t, tc.want, ev.Payload)
		})
	}
}

func TestDecodeEventIDIsStable(t *testing.T) {
	d := newTestDecoder(t)
	lg := buildLog(t, phenomenonAddr, PhenomenonABI, "GameStarted", []interface{}{big.NewInt(1)})
	ev, err := d.Decode(lg)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(lg.BlockHash.Hex())+"-7", ev.EventID())
	assert.True(t, strings.HasSuffix(ev.EventID(), "abcdef-7"))
}

func TestDecodeRejectsUnknownLogs(t *testing.T) {
	d := newTestDecoder(t)

	// right topic, wrong contract
	lg := buildLog(t, gameplayAddr, PhenomenonABI, "GameStarted", []interface{}{big.NewInt(1)})
	_, err := d.Decode(lg)
	assert.True(t, errors.Is(err, ErrUnknownEvent))

	lg = types.Log{Address: phenomenonAddr, Topics: []common.Hash{common.HexToHash("0xdead")}}
	_, err = d.Decode(lg)
	assert.True(t, errors.Is(err, ErrUnknownEvent))

	_, err = d.Decode(types.Log{Address: phenomenonAddr})
	assert.True(t, errors.Is(err, ErrUnknownEvent))

	lg = buildLog(t, phenomenonAddr, PhenomenonABI, "GameStarted", []interface{}{big.NewInt(1)})
	lg.Removed = true
	_, err = d.Decode(lg)
	assert.True(t, errors.Is(err, ErrRemovedLog))

	lg = buildLog(t, phenomenonAddr, PhenomenonABI, "GameStarted", []interface{}{big.NewInt(1)})
	lg.Topics = lg.Topics[:1]
	_, err = d.Decode(lg)
	assert.Error(t, err)
}

func TestFilterQueryCoversAllContracts(t *testing.T) {
	d := newTestDecoder(t)
	q := d.FilterQuery(100, 199)
	assert.Equal(t, int64(100), q.FromBlock.Int64())
	assert.Equal(t, int64(199), q.ToBlock.Int64())
	assert.ElementsMatch(t, []common.Address{phenomenonAddr, gameplayAddr, ticketAddr}, q.Addresses)
	require.Len(t, q.Topics, 1)
	assert.Len(t, q.Topics[0], len(phenomenonBuilders)+len(gameplayBuilders)+len(ticketBuilders))
}

func TestNewDecoderValidatesAddresses(t *testing.T) {
	_, err := NewDecoder(Addresses{Phenomenon: "nope", GameplayEngine: gameplayAddr.Hex(), TicketEngine: ticketAddr.Hex()})
	assert.Error(t, err)
}

type fakeCaller struct {
	out   []byte
	err   error
	block *big.Int
	msg   ethereum.CallMsg
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.msg, f.block = msg, block
	return f.out, f.err
}

func packProphetData(t *testing.T, marker int64) []byte {
	t.Helper()
	out, err := TicketEngineABI.Methods["getProphetData"].Outputs.Pack(player, true, true, big.NewInt(marker))
	require.NoError(t, err)
	return out
}

func TestRoleReader(t *testing.T) {
	caller := &fakeCaller{out: packProphetData(t, 99)}
	r, err := NewRoleReader(caller, ticketAddr.Hex(), 99)
	require.NoError(t, err)

	role, err := r.ResolveRole(context.Background(), 2, 5000)
	require.NoError(t, err)
	assert.Equal(t, model.RoleHighPriest, role)
	assert.Equal(t, int64(5000), caller.block.Int64())
	require.NotNil(t, caller.msg.To)
	assert.Equal(t, ticketAddr, *caller.msg.To)

	args, err := TicketEngineABI.Methods["getProphetData"].Inputs.Unpack(caller.msg.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, int64(2), args[0].(*big.Int).Int64())

	caller.out = packProphetData(t, 3)
	role, err = r.ResolveRole(context.Background(), 2, 5000)
	require.NoError(t, err)
	assert.Equal(t, model.RoleProphet, role)

	caller.err = errors.New("execution reverted")
	_, err = r.ResolveRole(context.Background(), 2, 5000)
	assert.Error(t, err)
}
