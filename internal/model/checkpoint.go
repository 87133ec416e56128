package model

import "time"

// Checkpoint last chain log applied for a source. Advanced in the same
// transaction as the projection writes for that log.
type Checkpoint struct {
	ID          string    `gorm:"column:id;primaryKey;type:varchar(32)"` // source key, chain id
	BlockNumber int64     `gorm:"column:block_number;not null"`
	LogIndex    int       `gorm:"column:log_index;not null"`
	BlockHash   string    `gorm:"column:block_hash;type:varchar(66);not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (Checkpoint) TableName() string { return "checkpoint" }

// Covers reports whether (block, logIndex) is at or before the checkpoint
func (c *Checkpoint) Covers(block int64, logIndex int) bool {
	if c == nil {
		return false
	}
	if block != c.BlockNumber {
		return block < c.BlockNumber
	}
	return logIndex <= c.LogIndex
}
