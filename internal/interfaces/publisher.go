package interfaces

import "context"

// GameChange notification emitted after a projection transaction commits
type GameChange struct {
	GameID      string `json:"gameId"`
	Event       string `json:"event"`
	BlockNumber uint64 `json:"blockNumber"`
	LogIndex    uint   `json:"logIndex"`
	TxHash      string `json:"txHash"`
}

// ChangePublisher fan-out of committed projection changes
type ChangePublisher interface {
	PublishGameChange(ctx context.Context, change GameChange) error
}
