package adapter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promDecodedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftscope_events_decoded",
		Help: "The total number of decoded events per adapter and kind",
	}, []string{"adapter", "kind"})

	promDecodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftscope_decode_failures",
		Help: "The total number of logs that failed to decode per adapter",
	}, []string{"adapter"})

	promMakerEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftscope_maker_updates_enqueued",
		Help: "The total number of maker updates enqueued per adapter",
	}, []string{"adapter"})

	promMakerEnqueueErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftscope_maker_enqueue_errors",
		Help: "The total number of maker-update enqueue failures per adapter",
	}, []string{"adapter"})

	promReorgRemovals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftscope_reorg_events_removed",
		Help: "The total number of events removed by reorg rollback per adapter",
	}, []string{"adapter"})
)
