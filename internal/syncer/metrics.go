package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promBlocksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nftscope_blocks_processed",
		Help: "The total number of blocks the live tail has committed",
	})

	promLogsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftscope_logs_fetched",
		Help: "The total number of raw logs fetched per adapter",
	}, []string{"adapter"})

	promReorgsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nftscope_reorgs_detected",
		Help: "The total number of reorgs detected by the live tail",
	})

	promOrphanedBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nftscope_orphaned_blocks",
		Help: "The total number of block hashes rolled back after a reorg",
	})
)
