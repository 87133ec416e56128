package chain

import (
	"errors"
	"fmt"
	"math/big"

	"PhenomenonIndexer/internal/model"
	"PhenomenonIndexer/internal/service"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrUnknownEvent log from an unwatched contract or with an unknown topic
	ErrUnknownEvent = errors.New("unknown chain event")
	// ErrRemovedLog log dropped by a reorg
	ErrRemovedLog = errors.New("log removed by reorg")
)

// Addresses source contract addresses
type Addresses struct {
	Phenomenon     string
	GameplayEngine string
	TicketEngine   string
}

type eventKey struct {
	contract common.Address
	topic    common.Hash
}

type eventDef struct {
	contract string
	event    abi.Event
	indexed  abi.Arguments
	build    func(args map[string]interface{}) (interface{}, error)
}

// Decoder turns raw logs of the three game contracts into typed chain events
type Decoder struct {
	defs      map[eventKey]*eventDef
	addresses []common.Address
	topics    []common.Hash
}

func NewDecoder(addrs Addresses) (*Decoder, error) {
	d := &Decoder{defs: make(map[eventKey]*eventDef)}
	sources := []struct {
		name     string
		address  string
		abi      abi.ABI
		builders map[string]func(map[string]interface{}) (interface{}, error)
	}{
		{service.ContractPhenomenon, addrs.Phenomenon, PhenomenonABI, phenomenonBuilders},
		{service.ContractGameplayEngine, addrs.GameplayEngine, GameplayEngineABI, gameplayBuilders},
		{service.ContractTicketEngine, addrs.TicketEngine, TicketEngineABI, ticketBuilders},
	}
	seenTopic := make(map[common.Hash]bool)
	for _, src := range sources {
		if !common.IsHexAddress(src.address) {
			return nil, fmt.Errorf("%s address %q is not a hex address", src.name, src.address)
		}
		addr := common.HexToAddress(src.address)
		d.addresses = append(d.addresses, addr)
		for name, build := range src.builders {
			ev, ok := src.abi.Events[name]
			if !ok {
				return nil, fmt.Errorf("%s abi has no event %s", src.name, name)
			}
			def := &eventDef{contract: src.name, event: ev, build: build}
			for _, in := range ev.Inputs {
				if in.Indexed {
					def.indexed = append(def.indexed, in)
				}
			}
			d.defs[eventKey{contract: addr, topic: ev.ID}] = def
			if !seenTopic[ev.ID] {
				seenTopic[ev.ID] = true
				d.topics = append(d.topics, ev.ID)
			}
		}
	}
	return d, nil
}

// FilterQuery eth_getLogs query for every watched event in [from, to]
func (d *Decoder) FilterQuery(from, to uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: d.addresses,
		Topics:    [][]common.Hash{d.topics},
	}
}

// Decode parses one log. Logs of unwatched events return ErrUnknownEvent.
func (d *Decoder) Decode(lg types.Log) (*service.ChainEvent, error) {
	if lg.Removed {
		return nil, ErrRemovedLog
	}
	if len(lg.Topics) == 0 {
		return nil, fmt.Errorf("%w: anonymous log at %s", ErrUnknownEvent, lg.Address.Hex())
	}
	def, ok := d.defs[eventKey{contract: lg.Address, topic: lg.Topics[0]}]
	if !ok {
		return nil, fmt.Errorf("%w: topic %s from %s", ErrUnknownEvent, lg.Topics[0].Hex(), lg.Address.Hex())
	}

	args := make(map[string]interface{})
	if nonIndexed := def.event.Inputs.NonIndexed(); len(nonIndexed) > 0 {
		if err := nonIndexed.UnpackIntoMap(args, lg.Data); err != nil {
			return nil, fmt.Errorf("unpack %s data: %w", def.event.Name, err)
		}
	}
	if len(lg.Topics)-1 != len(def.indexed) {
		return nil, fmt.Errorf("%s: expected %d indexed topics, got %d", def.event.Name, len(def.indexed), len(lg.Topics)-1)
	}
	if err := abi.ParseTopicsIntoMap(args, def.indexed, lg.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse %s topics: %w", def.event.Name, err)
	}

	payload, err := def.build(args)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", def.event.Name, err)
	}
	return &service.ChainEvent{
		LogMeta: service.LogMeta{
			Contract:    def.contract,
			Name:        def.event.Name,
			BlockNumber: lg.BlockNumber,
			BlockHash:   lg.BlockHash.Hex(),
			TxHash:      lg.TxHash.Hex(),
			LogIndex:    lg.Index,
		},
		Payload: payload,
	}, nil
}

var phenomenonBuilders = map[string]func(map[string]interface{}) (interface{}, error){
	"ProphetEnteredGame": func(a map[string]interface{}) (interface{}, error) {
		game, err := argInt64(a, "gameNumber")
		if err != nil {
			return nil, err
		}
		idx, err := argInt(a, "prophetNumber")
		if err != nil {
			return nil, err
		}
		sender, err := argAddress(a, "sender")
		if err != nil {
			return nil, err
		}
		return service.ProphetEnteredGame{GameNumber: game, ProphetIndex: idx, Sender: sender}, nil
	},
	"GameStarted": func(a map[string]interface{}) (interface{}, error) {
		game, err := argInt64(a, "gameNumber")
		if err != nil {
			return nil, err
		}
		return service.GameStarted{GameNumber: game}, nil
	},
	"GameEnded": func(a map[string]interface{}) (interface{}, error) {
		game, err := argInt64(a, "gameNumber")
		if err != nil {
			return nil, err
		}
		tpt, err := argBig(a, "tokensPerTicket")
		if err != nil {
			return nil, err
		}
		winner, err := argInt(a, "currentProphetTurn")
		if err != nil {
			return nil, err
		}
		return service.GameEnded{GameNumber: game, TokensPerTicket: tpt, WinnerIndex: winner}, nil
	},
	"GameReset": func(a map[string]interface{}) (interface{}, error) {
		game, err := argInt64(a, "newGameNumber")
		if err != nil {
			return nil, err
		}
		return service.GameReset{NewGameNumber: game}, nil
	},
	"CurrentTurn": func(a map[string]interface{}) (interface{}, error) {
		turn, err := argInt(a, "nextProphetTurn")
		if err != nil {
			return nil, err
		}
		return service.CurrentTurn{NextProphetTurn: turn}, nil
	},
	"NumberOfProphetsSet": func(a map[string]interface{}) (interface{}, error) {
		n, err := argInt(a, "numberOfProphets")
		if err != nil {
			return nil, err
		}
		return service.NumberOfProphetsSet{NumberOfProphets: n}, nil
	},
}

var gameplayBuilders = map[string]func(map[string]interface{}) (interface{}, error){
	"MiracleAttempted": func(a map[string]interface{}) (interface{}, error) {
		ok, err := argBool(a, "isSuccess")
		if err != nil {
			return nil, err
		}
		turn, err := argInt(a, "currentProphetTurn")
		if err != nil {
			return nil, err
		}
		return service.MiracleAttempted{Success: ok, ProphetIndex: turn}, nil
	},
	"SmiteAttempted": func(a map[string]interface{}) (interface{}, error) {
		ok, err := argBool(a, "isSuccess")
		if err != nil {
			return nil, err
		}
		turn, err := argInt(a, "currentProphetTurn")
		if err != nil {
			return nil, err
		}
		target, err := argInt(a, "target")
		if err != nil {
			return nil, err
		}
		return service.SmiteAttempted{Success: ok, ProphetIndex: turn, TargetIndex: target}, nil
	},
	"Accusation": func(a map[string]interface{}) (interface{}, error) {
		ok, err := argBool(a, "isSuccess")
		if err != nil {
			return nil, err
		}
		alive, err := argBool(a, "targetIsAlive")
		if err != nil {
			return nil, err
		}
		turn, err := argInt(a, "currentProphetTurn")
		if err != nil {
			return nil, err
		}
		target, err := argInt(a, "_target")
		if err != nil {
			return nil, err
		}
		return service.Accusation{Success: ok, TargetStillActive: alive, ProphetIndex: turn, TargetIndex: target}, nil
	},
	"ForceMiracleTriggered": func(a map[string]interface{}) (interface{}, error) {
		turn, err := argInt(a, "currentProphetTurn")
		if err != nil {
			return nil, err
		}
		return service.ForceMiracleTriggered{ProphetIndex: turn}, nil
	},
}

var ticketBuilders = map[string]func(map[string]interface{}) (interface{}, error){
	"gainReligion": func(a map[string]interface{}) (interface{}, error) {
		target, tickets, price, sender, err := tradeArgs(a, "numTicketsBought")
		if err != nil {
			return nil, err
		}
		return service.GainReligion{TargetIndex: target, Tickets: tickets, TotalPrice: price, Buyer: sender}, nil
	},
	"religionLost": func(a map[string]interface{}) (interface{}, error) {
		target, tickets, price, sender, err := tradeArgs(a, "numTicketsSold")
		if err != nil {
			return nil, err
		}
		return service.ReligionLost{TargetIndex: target, Tickets: tickets, TotalPrice: price, Seller: sender}, nil
	},
	"ticketsClaimed": func(a map[string]interface{}) (interface{}, error) {
		game, err := argInt64(a, "gameNumber")
		if err != nil {
			return nil, err
		}
		player, err := argAddress(a, "player")
		if err != nil {
			return nil, err
		}
		sent, err := argBig(a, "tokensSent")
		if err != nil {
			return nil, err
		}
		return service.TicketsClaimed{GameNumber: game, Player: player, TokensSent: sent}, nil
	},
	"ticketSalesEnabled": func(a map[string]interface{}) (interface{}, error) {
		enabled, err := argBool(a, "_ticketSalesEnabled")
		if err != nil {
			return nil, err
		}
		return service.TicketSalesEnabled{Enabled: enabled}, nil
	},
}

func tradeArgs(a map[string]interface{}, countField string) (int, int64, *big.Int, string, error) {
	target, err := argInt(a, "_target")
	if err != nil {
		return 0, 0, nil, "", err
	}
	tickets, err := argInt64(a, countField)
	if err != nil {
		return 0, 0, nil, "", err
	}
	price, err := argBig(a, "totalPrice")
	if err != nil {
		return 0, 0, nil, "", err
	}
	sender, err := argAddress(a, "sender")
	if err != nil {
		return 0, 0, nil, "", err
	}
	return target, tickets, price, sender, nil
}

func argBig(a map[string]interface{}, name string) (*big.Int, error) {
	v, ok := a[name].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("argument %s: expected uint256, got %T", name, a[name])
	}
	return v, nil
}

func argInt64(a map[string]interface{}, name string) (int64, error) {
	v, err := argBig(a, name)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("argument %s: %s overflows int64", name, v)
	}
	return v.Int64(), nil
}

func argInt(a map[string]interface{}, name string) (int, error) {
	v, err := argInt64(a, name)
	if err != nil {
		return 0, err
	}
	if v > int64(^uint32(0)>>1) {
		return 0, fmt.Errorf("argument %s: %d out of range", name, v)
	}
	return int(v), nil
}

func argBool(a map[string]interface{}, name string) (bool, error) {
	v, ok := a[name].(bool)
	if !ok {
		return false, fmt.Errorf("argument %s: expected bool, got %T", name, a[name])
	}
	return v, nil
}

// argAddress lower-cased hex
func argAddress(a map[string]interface{}, name string) (string, error) {
	v, ok := a[name].(common.Address)
	if !ok {
		return "", fmt.Errorf("argument %s: expected address, got %T", name, a[name])
	}
	return model.NormalizeAddress(v.Hex()), nil
}
