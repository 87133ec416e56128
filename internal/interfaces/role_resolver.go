package interfaces

import "context"

// RoleResolver point-in-time role lookup for a prophet. Returns model.RoleProphet
// or model.RoleHighPriest as of blockNumber.
type RoleResolver interface {
	ResolveRole(ctx context.Context, prophetIndex int, blockNumber uint64) (string, error)
}
