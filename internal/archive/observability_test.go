package archive_test

import (
	"context"
	"testing"
	"time"

	"github.com/havogt/serialbox2/internal/archive"
	"github.com/havogt/serialbox2/internal/errors"
	"github.com/havogt/serialbox2/internal/metrics"
	"github.com/havogt/serialbox2/internal/model"
	"github.com/havogt/serialbox2/internal/storage/diskmanager"
	"github.com/havogt/serialbox2/internal/storageview"
	"github.com/havogt/serialbox2/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskGuard(t *testing.T) {
	t.Run("circuit broken rejects writes", func(t *testing.T) {
		cfg := archive.DefaultConfig()
		cfg.Disk = &diskmanager.DiskManagerConfig{
			CheckInterval:           time.Hour,
			WarningThreshold:        -1,
			ThrottleThreshold:       -1,
			CircuitBreakerThreshold: -1,
		}
		a := openArchive(t, testutil.NewDirectory(t).Path(), model.OpenModeWrite, cfg)

		err := a.Write(model.FieldID{Name: "T", ID: 0}, storageview.Bytes([]byte{1}))
		requireCode(t, err, errors.ErrCodeDiskFull)
		assert.True(t, diskmanager.IsCircuitBroken(err))
		assert.Empty(t, a.Fields())
	})

	t.Run("healthy disk accepts writes", func(t *testing.T) {
		cfg := archive.DefaultConfig()
		cfg.Disk = &diskmanager.DiskManagerConfig{
			CheckInterval:           time.Hour,
			WarningThreshold:        101,
			ThrottleThreshold:       101,
			CircuitBreakerThreshold: 101,
		}
		a := openArchive(t, testutil.NewDirectory(t).Path(), model.OpenModeWrite, cfg)
		require.NoError(t, a.Write(model.FieldID{Name: "T", ID: 0}, storageview.Bytes([]byte{1})))
	})
}

func TestMetrics_RecordOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("test", reg)
	cfg := archive.DefaultConfig()
	cfg.Metrics = m

	fixture := testutil.NewDirectory(t)
	w := openArchive(t, fixture.Path(), model.OpenModeWrite, cfg)
	require.NoError(t, w.Write(model.FieldID{Name: "T", ID: 0}, storageview.Bytes([]byte{1, 2})))
	require.NoError(t, w.Write(model.FieldID{Name: "T", ID: 1}, storageview.Bytes([]byte{3, 4})))
	require.NoError(t, w.Write(model.FieldID{Name: "T", ID: 1}, storageview.Bytes([]byte{5, 6})))
	require.NoError(t, w.Write(model.FieldID{Name: "U", ID: 0}, storageview.Bytes([]byte{7})))
	require.Error(t, w.Write(model.FieldID{Name: "", ID: 0}, storageview.Bytes([]byte{7})))

	assert.Equal(t, 2.0, promtestutil.ToFloat64(m.WritesTotal.WithLabelValues(metrics.WriteKindCreate)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.WritesTotal.WithLabelValues(metrics.WriteKindAppend)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.WritesTotal.WithLabelValues(metrics.WriteKindOverwrite)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.WriteFailuresTotal.WithLabelValues("InvalidArgument")))
	assert.Equal(t, 4.0, promtestutil.ToFloat64(m.LedgerPersistsTotal))
	assert.Equal(t, 2.0, promtestutil.ToFloat64(m.LedgerFields))
	assert.Equal(t, 3.0, promtestutil.ToFloat64(m.LedgerOccurrences))
	require.NoError(t, w.Close())

	data := fixture.ReadFile("U.dat")
	data[0] ^= 0xFF
	fixture.WriteFile("U.dat", data)

	r := openArchive(t, fixture.Path(), model.OpenModeRead, cfg)
	require.NoError(t, r.Read(model.FieldID{Name: "T", ID: 1}, storageview.Bytes(make([]byte, 2))))
	require.Error(t, r.Read(model.FieldID{Name: "U", ID: 0}, storageview.Bytes(make([]byte, 1))))
	require.Error(t, r.Read(model.FieldID{Name: "V", ID: 0}, storageview.Bytes(make([]byte, 1))))

	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.ReadsTotal))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.ReadFailuresTotal.WithLabelValues("IntegrityCheckFailed")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.ReadFailuresTotal.WithLabelValues("UnknownField")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.IntegrityFailures))

	report, err := r.Verify(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, report.Failures, 1)
	assert.Equal(t, 2.0, promtestutil.ToFloat64(m.VerifiedOccurrences))
	assert.Equal(t, 2.0, promtestutil.ToFloat64(m.IntegrityFailures))
}
