package metrics

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

type ScanMetrics struct {
	Registry *prometheus.Registry

	AddressesScanned *prometheus.CounterVec
	RecordsEmitted   prometheus.Counter
	ProxiesResolved  prometheus.Counter
	StorageReads     *prometheus.CounterVec
	RPCLatency       prometheus.Histogram
	ScanDuration     prometheus.Histogram
}

// NewScanMetrics creates the metrics of one run on a private registry.
func NewScanMetrics() *ScanMetrics {
	m := &ScanMetrics{
		Registry: prometheus.NewRegistry(),
		AddressesScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "permscan_addresses_scanned_total",
			Help: "Total number of configured addresses processed, by outcome",
		}, []string{"status"}),
		RecordsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "permscan_permission_records_total",
			Help: "Total number of guarded function records emitted",
		}),
		ProxiesResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "permscan_proxies_resolved_total",
			Help: "Total number of proxies resolved to an implementation",
		}),
		StorageReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "permscan_storage_reads_total",
			Help: "Total number of storage slot reads, by result",
		}, []string{"result"}),
		RPCLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "permscan_rpc_latency_seconds",
			Help:    "Latency of storage slot reads in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "permscan_address_duration_seconds",
			Help:    "Time taken to analyze one address in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
	m.Registry.MustRegister(m.AddressesScanned, m.RecordsEmitted, m.ProxiesResolved, m.StorageReads, m.RPCLatency, m.ScanDuration)
	return m
}

// WriteTextfile writes the registry in the node exporter textfile format.
func (m *ScanMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}

type StorageReader interface {
	StorageAt(ctx context.Context, account common.Address, slot common.Hash, block *big.Int) ([]byte, error)
}

type observedReader struct {
	next    StorageReader
	metrics *ScanMetrics
}

// ObserveReader counts and times every read made through next.
func (m *ScanMetrics) ObserveReader(next StorageReader) StorageReader {
	return &observedReader{next: next, metrics: m}
}

func (o *observedReader) StorageAt(ctx context.Context, account common.Address, slot common.Hash, block *big.Int) ([]byte, error) {
	start := time.Now()
	word, err := o.next.StorageAt(ctx, account, slot, block)
	o.metrics.RPCLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		o.metrics.StorageReads.WithLabelValues("error").Inc()
		return nil, err
	}
	o.metrics.StorageReads.WithLabelValues("ok").Inc()
	return word, nil
}
