package diskmanager

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fakeStatfs(total, available uint64) func(string) (uint64, uint64, error) {
	return func(string) (uint64, uint64, error) {
		return total, available, nil
	}
}

func newTestManager(t *testing.T, total, available uint64) *DiskManager {
	t.Helper()
	dm, err := NewDiskManager(&DiskManagerConfig{
		DataDir:                 t.TempDir(),
		CheckInterval:           time.Hour,
		WarningThreshold:        80,
		ThrottleThreshold:       90,
		CircuitBreakerThreshold: 95,
	}, zap.NewNop())
	require.NoError(t, err)

	dm.statfs = fakeStatfs(total, available)
	require.NoError(t, dm.ForceCheck())
	return dm
}

func TestNewDiskManager_RequiresDirectory(t *testing.T) {
	_, err := NewDiskManager(&DiskManagerConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewDiskManager_RealFilesystem(t *testing.T) {
	dm, err := NewDiskManager(DefaultConfig(t.TempDir()), nil)
	require.NoError(t, err)

	stats := dm.GetDiskUsage()
	assert.False(t, stats.LastCheck.IsZero())
	assert.GreaterOrEqual(t, stats.UsagePercent, 0.0)
}

func TestCheckBeforeWrite(t *testing.T) {
	tests := []struct {
		name      string
		total     uint64
		available uint64
		write     uint64
		wantCode  ErrorCode
		broken    bool
	}{
		{"plenty of space", 1000, 900, 100, 0, false},
		{"insufficient space", 1000, 500, 600, ErrCodeInsufficientSpace, false},
		{"throttled small write", 1000, 80, 5, 0, false},
		{"throttled large write", 1000, 80, 50, ErrCodeDiskThrottled, false},
		{"circuit broken", 1000, 20, 1, ErrCodeDiskFull, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dm := newTestManager(t, tt.total, tt.available)

			err := dm.CheckBeforeWrite(tt.write)
			if tt.wantCode == 0 {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			require.True(t, IsDiskSpaceError(err))
			var dse *DiskSpaceError
			require.True(t, errors.As(err, &dse))
			assert.Equal(t, tt.wantCode, dse.Code)
			assert.Equal(t, tt.broken, IsCircuitBroken(err))
		})
	}
}

func TestCheckBeforeWrite_AccountsForPendingWrites(t *testing.T) {
	dm := newTestManager(t, 1000, 150)

	require.NoError(t, dm.CheckBeforeWrite(100))
	assert.Error(t, dm.CheckBeforeWrite(100), "second write should exceed the remaining space")
}

func TestForceCheck_StatError(t *testing.T) {
	dm := newTestManager(t, 1000, 900)
	dm.statfs = func(string) (uint64, uint64, error) {
		return 0, 0, errors.New("boom")
	}
	assert.Error(t, dm.ForceCheck())
}

func TestForceCheck_StateTransitions(t *testing.T) {
	dm := newTestManager(t, 1000, 900)
	assert.Equal(t, stateOK, dm.state)

	steps := []struct {
		available uint64
		want      spaceState
	}{
		{150, stateWarning},
		{80, stateThrottled},
		{10, stateBroken},
		{500, stateOK},
	}
	for _, step := range steps {
		dm.statfs = fakeStatfs(1000, step.available)
		require.NoError(t, dm.ForceCheck())
		assert.Equal(t, step.want, dm.state, "available=%d", step.available)
	}

	stats := dm.GetDiskUsage()
	assert.InDelta(t, 50.0, stats.UsagePercent, 0.001)
	assert.Equal(t, uint64(500), stats.AvailableBytes)
	assert.False(t, stats.IsThrottled)
	assert.False(t, stats.IsCircuitBroken)
}
