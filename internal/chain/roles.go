package chain

import (
	"context"
	"fmt"
	"math/big"

	"PhenomenonIndexer/internal/model"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// RoleReader resolves prophet roles with a getProphetData call pinned to a block
type RoleReader struct {
	caller   ethereum.ContractCaller
	contract common.Address
	sentinel *big.Int
}

// NewRoleReader sentinel is the 4th getProphetData field value that marks a high priest
func NewRoleReader(caller ethereum.ContractCaller, contract string, sentinel uint64) (*RoleReader, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("role contract address %q is not a hex address", contract)
	}
	return &RoleReader{
		caller:   caller,
		contract: common.HexToAddress(contract),
		sentinel: new(big.Int).SetUint64(sentinel),
	}, nil
}

func (r *RoleReader) ResolveRole(ctx context.Context, prophetIndex int, blockNumber uint64) (string, error) {
	data, err := TicketEngineABI.Pack("getProphetData", big.NewInt(int64(prophetIndex)))
	if err != nil {
		return "", fmt.Errorf("pack getProphetData: %w", err)
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: data}, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return "", fmt.Errorf("call getProphetData(%d) at %d: %w", prophetIndex, blockNumber, err)
	}
	values, err := TicketEngineABI.Unpack("getProphetData", out)
	if err != nil {
		return "", fmt.Errorf("unpack getProphetData: %w", err)
	}
	if len(values) != 4 {
		return "", fmt.Errorf("getProphetData returned %d values", len(values))
	}
	marker, ok := values[3].(*big.Int)
	if !ok {
		return "", fmt.Errorf("getProphetData field 4: unexpected %T", values[3])
	}
	if marker.Cmp(r.sentinel) == 0 {
		return model.RoleHighPriest, nil
	}
	return model.RoleProphet, nil
}
