package listener

import (
	"context"
	"errors"
	"sort"
	"time"

	"PhenomenonIndexer/internal/chain"
	"PhenomenonIndexer/internal/config"
	"PhenomenonIndexer/internal/interfaces"
	"PhenomenonIndexer/internal/metrics"
	"PhenomenonIndexer/internal/service"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// ChainSubscriber polls eth_getLogs for the game contracts and emits decoded
// events in (block, log index) order. Only blocks at least Confirmations deep are read.
type ChainSubscriber struct {
	cfg     *config.ChainConfig
	client  interfaces.ChainReader
	decoder *chain.Decoder
	metrics *metrics.Collectors
	logger  *logrus.Logger
}

// NewChainSubscriber client is usually an *ethclient.Client
func NewChainSubscriber(cfg *config.ChainConfig, client interfaces.ChainReader, decoder *chain.Decoder, m *metrics.Collectors, logger *logrus.Logger) *ChainSubscriber {
	return &ChainSubscriber{cfg: cfg, client: client, decoder: decoder, metrics: m, logger: logger}
}

// Run reads from block `from` onward until ctx is done. RPC failures are logged
// and retried on the next poll.
func (s *ChainSubscriber) Run(ctx context.Context, from uint64, out chan<- *service.ChainEvent) error {
	next := from
	batch := s.cfg.BatchSize
	if batch == 0 {
		batch = 1000
	}
	s.logger.WithField("from_block", from).Info("ChainSubscriber started")

	for {
		head, err := s.client.BlockNumber(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.WithError(err).Warn("ChainSubscriber: read head failed")
		} else {
			s.metrics.ChainHead(head)
			if head >= s.cfg.Confirmations {
				safe := head - s.cfg.Confirmations
				for next <= safe {
					to := next + batch - 1
					if to > safe {
						to = safe
					}
					if err := s.readRange(ctx, next, to, out); err != nil {
						if ctx.Err() != nil {
							return nil
						}
						s.logger.WithError(err).WithFields(logrus.Fields{
							"from": next,
							"to":   to,
						}).Warn("ChainSubscriber: get logs failed")
						break
					}
					next = to + 1
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

func (s *ChainSubscriber) readRange(ctx context.Context, from, to uint64, out chan<- *service.ChainEvent) error {
	logs, err := s.client.FilterLogs(ctx, s.decoder.FilterQuery(from, to))
	if err != nil {
		return err
	}
	sortLogs(logs)
	for _, lg := range logs {
		ev, err := s.decoder.Decode(lg)
		if err != nil {
			entry := s.logger.WithError(err).WithFields(logrus.Fields{
				"block":   lg.BlockNumber,
				"log":     lg.Index,
				"tx_hash": lg.TxHash.Hex(),
			})
			if errors.Is(err, chain.ErrUnknownEvent) || errors.Is(err, chain.ErrRemovedLog) {
				entry.Debug("ChainSubscriber: log skipped")
			} else {
				entry.Error("ChainSubscriber: undecodable log skipped")
			}
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if len(logs) > 0 {
		s.logger.WithFields(logrus.Fields{
			"from": from,
			"to":   to,
			"logs": len(logs),
		}).Debug("ChainSubscriber: range read")
	}
	return nil
}

func sortLogs(logs []types.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
}
