package diskmanager

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// spaceState is the guard level derived from the usage percentage
type spaceState int

const (
	stateOK spaceState = iota
	stateWarning
	stateThrottled
	stateBroken
)

func (s spaceState) String() string {
	switch s {
	case stateWarning:
		return "warning"
	case stateThrottled:
		return "throttled"
	case stateBroken:
		return "circuit_broken"
	default:
		return "ok"
	}
}

// DiskManager monitors free space on the filesystem holding an archive and
// refuses field writes that would fill it. Statfs results are cached for
// CheckInterval; writes accepted in between are subtracted from the cached
// free space.
type DiskManager struct {
	mu     sync.Mutex
	dir    string
	logger *zap.Logger
	statfs func(path string) (total, available uint64, err error)

	interval   time.Duration
	thresholds [3]float64 // warning, throttle, circuit breaker

	state     spaceState
	usage     float64
	available uint64
	checked   time.Time
}

// DiskManagerConfig holds the guard thresholds, as usage percentages
type DiskManagerConfig struct {
	DataDir                 string
	CheckInterval           time.Duration
	WarningThreshold        float64
	ThrottleThreshold       float64
	CircuitBreakerThreshold float64
}

// NewDiskManager creates a guard for cfg.DataDir and takes a first reading
func NewDiskManager(cfg *DiskManagerConfig, logger *zap.Logger) (*DiskManager, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dm := &DiskManager{
		dir:      cfg.DataDir,
		logger:   logger,
		statfs:   statfs,
		interval: cfg.CheckInterval,
		thresholds: [3]float64{
			cfg.WarningThreshold,
			cfg.ThrottleThreshold,
			cfg.CircuitBreakerThreshold,
		},
	}

	if err := dm.ForceCheck(); err != nil {
		logger.Warn("Initial disk space check failed", zap.Error(err))
	}
	return dm, nil
}

// DefaultConfig returns the default thresholds for dataDir
func DefaultConfig(dataDir string) *DiskManagerConfig {
	return &DiskManagerConfig{
		DataDir:                 dataDir,
		CheckInterval:           10 * time.Second,
		WarningThreshold:        80.0,
		ThrottleThreshold:       90.0,
		CircuitBreakerThreshold: 95.0,
	}
}

// CheckBeforeWrite reports whether a write of size bytes may proceed. Once
// the circuit breaker is engaged every write is refused; while throttled only
// writes below a tenth of the free space are accepted.
func (dm *DiskManager) CheckBeforeWrite(size uint64) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.refreshLocked()

	switch {
	case dm.state == stateBroken:
		return dm.errorLocked(ErrCodeDiskFull,
			fmt.Sprintf("disk usage at %.2f%%, circuit breaker engaged", dm.usage))
	case dm.state == stateThrottled && size > dm.available/10:
		return dm.errorLocked(ErrCodeDiskThrottled,
			fmt.Sprintf("disk usage at %.2f%%, write of %d bytes throttled", dm.usage, size))
	case size > dm.available:
		return dm.errorLocked(ErrCodeInsufficientSpace,
			fmt.Sprintf("insufficient space: need %d bytes, have %d bytes", size, dm.available))
	}

	dm.available -= size
	return nil
}

// GetDiskUsage returns the cached reading, refreshing it when stale
func (dm *DiskManager) GetDiskUsage() DiskUsageStats {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.refreshLocked()
	return DiskUsageStats{
		UsagePercent:    dm.usage,
		AvailableBytes:  dm.available,
		IsThrottled:     dm.state == stateThrottled,
		IsCircuitBroken: dm.state == stateBroken,
		LastCheck:       dm.checked,
	}
}

// ForceCheck takes a fresh reading regardless of the cache age
func (dm *DiskManager) ForceCheck() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.checkLocked()
}

func (dm *DiskManager) refreshLocked() {
	if time.Since(dm.checked) <= dm.interval {
		return
	}
	if err := dm.checkLocked(); err != nil {
		dm.logger.Warn("Disk space check failed", zap.Error(err))
	}
}

func (dm *DiskManager) checkLocked() error {
	total, available, err := dm.statfs(dm.dir)
	if err != nil {
		return err
	}

	usage := 0.0
	if total > 0 {
		usage = float64(total-available) / float64(total) * 100.0
	}

	state := stateOK
	for i := len(dm.thresholds) - 1; i >= 0; i-- {
		if usage >= dm.thresholds[i] {
			state = spaceState(i + 1)
			break
		}
	}

	previous := dm.state
	dm.state = state
	dm.usage = usage
	dm.available = available
	dm.checked = time.Now()

	if state == previous {
		return nil
	}

	fields := []zap.Field{
		zap.String("directory", dm.dir),
		zap.Stringer("state", state),
		zap.Stringer("previous", previous),
		zap.Float64("usage_percent", usage),
		zap.Uint64("available_bytes", available),
	}
	switch {
	case state == stateBroken:
		dm.logger.Error("Disk circuit breaker engaged, archive writes refused", fields...)
	case state > previous:
		dm.logger.Warn("Disk usage rising", fields...)
	default:
		dm.logger.Info("Disk usage recovered", fields...)
	}
	return nil
}

func (dm *DiskManager) errorLocked(code ErrorCode, message string) *DiskSpaceError {
	return &DiskSpaceError{
		Code:            code,
		Message:         message,
		UsagePercent:    dm.usage,
		AvailableBytes:  dm.available,
		IsThrottled:     dm.state == stateThrottled,
		IsCircuitBroken: dm.state == stateBroken,
	}
}

func statfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, fmt.Errorf("failed to stat filesystem: %w", err)
	}
	return stat.Blocks * uint64(stat.Bsize), stat.Bavail * uint64(stat.Bsize), nil
}

// DiskUsageStats is a snapshot of the guard state
type DiskUsageStats struct {
	UsagePercent    float64
	AvailableBytes  uint64
	IsThrottled     bool
	IsCircuitBroken bool
	LastCheck       time.Time
}

// ErrorCode identifies why a write was refused
type ErrorCode int

const (
	ErrCodeDiskFull ErrorCode = iota + 1
	ErrCodeDiskThrottled
	ErrCodeInsufficientSpace
)

// DiskSpaceError is returned by CheckBeforeWrite
type DiskSpaceError struct {
	Code            ErrorCode
	Message         string
	UsagePercent    float64
	AvailableBytes  uint64
	IsThrottled     bool
	IsCircuitBroken bool
}

func (e *DiskSpaceError) Error() string {
	return e.Message
}

// IsDiskSpaceError reports whether err is or wraps a DiskSpaceError
func IsDiskSpaceError(err error) bool {
	var dse *DiskSpaceError
	return errors.As(err, &dse)
}

// IsCircuitBroken reports whether err was caused by the circuit breaker
func IsCircuitBroken(err error) bool {
	var dse *DiskSpaceError
	if errors.As(err, &dse) {
		return dse.IsCircuitBroken
	}
	return false
}
