package listener

import (
	"context"
	"fmt"

	"PhenomenonIndexer/internal/service"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Indexer wires the log reader to the projection worker through a bounded queue
type Indexer struct {
	subscriber *ChainSubscriber
	listener   *ContractListener
	projector  Projector
	startBlock uint64
	queueSize  int
	logger     *logrus.Logger
}

func NewIndexer(subscriber *ChainSubscriber, listener *ContractListener, projector Projector, startBlock uint64, queueSize int, logger *logrus.Logger) *Indexer {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Indexer{
		subscriber: subscriber,
		listener:   listener,
		projector:  projector,
		startBlock: startBlock,
		queueSize:  queueSize,
		logger:     logger,
	}
}

// ResumeBlock first block to read: the checkpoint block (partially applied
// blocks are filtered by the checkpoint) or the configured start block.
func (ix *Indexer) ResumeBlock(ctx context.Context) (uint64, error) {
	cp, err := ix.projector.Checkpoint(ctx)
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp == nil || cp.BlockNumber < 0 || uint64(cp.BlockNumber) < ix.startBlock {
		return ix.startBlock, nil
	}
	return uint64(cp.BlockNumber), nil
}

// Run blocks until ctx is cancelled or the worker stops
func (ix *Indexer) Run(ctx context.Context) error {
	from, err := ix.ResumeBlock(ctx)
	if err != nil {
		return err
	}
	ix.logger.WithField("from_block", from).Info("indexer resuming")

	queue := make(chan *service.ChainEvent, ix.queueSize)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		return ix.subscriber.Run(gctx, from, queue)
	})
	g.Go(func() error {
		return ix.listener.Run(gctx, queue)
	})
	return g.Wait()
}
