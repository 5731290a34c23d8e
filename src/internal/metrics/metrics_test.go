package metrics

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticReader struct{ err error }

func (s staticReader) StorageAt(context.Context, common.Address, common.Hash, *big.Int) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return make([]byte, 32), nil
}

func TestObserveReader(t *testing.T) {
	m := NewScanMetrics()

	_, err := m.ObserveReader(staticReader{}).StorageAt(context.Background(), common.Address{}, common.Hash{}, nil)
	require.NoError(t, err)
	_, err = m.ObserveReader(staticReader{err: errors.New("down")}).StorageAt(context.Background(), common.Address{}, common.Hash{}, nil)
	require.Error(t, err)

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch f.GetName() {
			case "permscan_storage_reads_total":
				counts[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
			case "permscan_rpc_latency_seconds":
				counts["observed"] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	assert.Equal(t, map[string]float64{"ok": 1, "error": 1, "observed": 2}, counts)
}

func TestWriteTextfile(t *testing.T) {
	m := NewScanMetrics()
	m.AddressesScanned.WithLabelValues(StatusOK).Add(2)
	m.AddressesScanned.WithLabelValues(StatusSkipped).Inc()
	m.RecordsEmitted.Add(5)

	path := filepath.Join(t.TempDir(), "permscan.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `permscan_addresses_scanned_total{status="ok"} 2`)
	assert.Contains(t, string(data), `permscan_addresses_scanned_total{status="skipped"} 1`)
	assert.Contains(t, string(data), "permscan_permission_records_total 5")
}
