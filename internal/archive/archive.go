// Package archive implements the binary field archive: a directory holding one
// data file per field ("<name>.dat") and a JSON ledger recording, for every
// occurrence of every field, the byte offset of its data and a checksum of its
// bytes.
//
// An Archive is opened in one of three modes. Write starts a fresh archive in
// an empty directory, Append extends an existing one (or starts one), and Read
// serves occurrences back after verifying their checksums. The in-memory
// ledger is authoritative and is rewritten in full whenever it changes.
//
// At most one Archive may be open on a directory at a time, and an Archive is
// not safe for concurrent use. Callers must Close an archive to guarantee that
// deferred ledger changes reach the disk.
package archive

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/havogt/serialbox2/internal/errors"
	"github.com/havogt/serialbox2/internal/metrics"
	"github.com/havogt/serialbox2/internal/model"
	"github.com/havogt/serialbox2/internal/storage/diskmanager"
	"github.com/havogt/serialbox2/internal/util"
	"github.com/havogt/serialbox2/internal/validation"
	"go.uber.org/zap"
)

const (
	// LedgerFileName is the name of the ledger inside the archive directory
	LedgerFileName = "ArchiveMetaData.json"

	// DataFileSuffix is appended to a field name to form its data file name
	DataFileSuffix = ".dat"

	// DefaultMaxBufferBytes bounds the contiguous buffer of a single occurrence
	DefaultMaxBufferBytes = 1 << 30
)

// StorageView is the in-memory data handed to Write and filled by Read.
// Iterate must visit the same elements in the same order on every call.
type StorageView interface {
	SizeInBytes() int
	BytesPerElement() int
	Iterate(fn func(element []byte) bool)
}

// Config holds archive configuration
type Config struct {
	// ChecksumAlgorithm is used for new archives; an existing ledger's
	// recorded algorithm takes precedence
	ChecksumAlgorithm string
	// MaxBufferBytes caps the size of one occurrence (0 = no limit)
	MaxBufferBytes int64
	// SyncWrites fsyncs data files and the ledger after every write
	SyncWrites bool
	// DeferLedgerWrites keeps ledger changes in memory until Flush or Close
	DeferLedgerWrites bool
	// Disk enables the free-space guard for Write and Append archives.
	// DataDir is replaced by the archive directory.
	Disk *diskmanager.DiskManagerConfig
	// Metrics receives operation metrics when set
	Metrics *metrics.Metrics
}

// DefaultConfig returns the default archive configuration
func DefaultConfig() *Config {
	return &Config{
		ChecksumAlgorithm: string(util.AlgorithmSHA256),
		MaxBufferBytes:    DefaultMaxBufferBytes,
	}
}

// Archive is an open binary field archive
type Archive struct {
	directory   string
	mode        model.OpenMode
	config      Config
	algorithm   util.Algorithm
	table       model.FieldTable
	dirty       bool
	closed      bool
	logger      *zap.Logger
	metrics     *metrics.Metrics
	diskManager *diskmanager.DiskManager
	validator   *validation.Validator
}

// Open validates and prepares directory for mode and loads its ledger.
// A nil cfg selects DefaultConfig and a nil logger disables logging.
func Open(directory string, mode model.OpenMode, cfg *Config, logger *zap.Logger) (*Archive, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch mode {
	case model.OpenModeRead, model.OpenModeWrite, model.OpenModeAppend:
	default:
		return nil, errors.InvalidArgument(fmt.Sprintf("invalid open mode %d", int(mode)), nil)
	}

	algorithm, err := util.ParseAlgorithm(cfg.ChecksumAlgorithm)
	if err != nil {
		return nil, errors.InvalidArgument("invalid archive configuration", err)
	}

	if err := prepareDirectory(directory, mode); err != nil {
		return nil, err
	}

	a := &Archive{
		directory: directory,
		mode:      mode,
		config:    *cfg,
		algorithm: algorithm,
		table:     make(model.FieldTable),
		logger:    logger.With(zap.String("directory", directory), zap.Stringer("mode", mode)),
		metrics:   cfg.Metrics,
		validator: validation.NewValidator(),
	}

	if err := a.loadLedger(); err != nil {
		return nil, err
	}

	if cfg.Disk != nil && mode != model.OpenModeRead {
		diskCfg := *cfg.Disk
		diskCfg.DataDir = directory
		dm, err := diskmanager.NewDiskManager(&diskCfg, a.logger)
		if err != nil {
			return nil, errors.InvalidArgument("invalid disk configuration", err)
		}
		a.diskManager = dm
	}

	a.updateLedgerGauges()
	a.logger.Info("Archive opened",
		zap.Int("fields", len(a.table)),
		zap.String("checksum_algorithm", string(a.algorithm)))

	return a, nil
}

// Directory returns the archive directory
func (a *Archive) Directory() string {
	return a.directory
}

// Mode returns the mode the archive was opened with
func (a *Archive) Mode() model.OpenMode {
	return a.mode
}

// ChecksumAlgorithm returns the algorithm used for occurrence checksums
func (a *Archive) ChecksumAlgorithm() util.Algorithm {
	return a.algorithm
}

// Dirty reports whether the ledger has changes not yet on disk
func (a *Archive) Dirty() bool {
	return a.dirty
}

// Fields returns the names of all recorded fields in sorted order
func (a *Archive) Fields() []string {
	names := make([]string, 0, len(a.table))
	for name := range a.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FieldOffsets returns a copy of the ledger row of a field
func (a *Archive) FieldOffsets(name string) (model.FieldOffsetTable, bool) {
	row, ok := a.table[name]
	if !ok {
		return nil, false
	}
	return append(model.FieldOffsetTable(nil), row...), true
}

// NumOccurrences returns the number of recorded occurrences of a field
func (a *Archive) NumOccurrences(name string) int {
	return len(a.table[name])
}

// Flush persists the ledger if it has unflushed changes
func (a *Archive) Flush() error {
	if a.closed {
		return errors.Closed(a.directory)
	}
	return a.persistLedger()
}

// Close persists any unflushed ledger changes and closes the archive. If the
// ledger cannot be written the archive stays open so Close can be retried.
// Closing a closed archive is a no-op.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	if err := a.persistLedger(); err != nil {
		a.logger.Error("Failed to persist ledger on close", zap.Error(err))
		return err
	}
	a.closed = true
	a.logger.Debug("Archive closed")
	return nil
}

// String renders the directory, mode and full field table
func (a *Archive) String() string {
	var b strings.Builder
	b.WriteString("BinaryArchive [\n")
	fmt.Fprintf(&b, "  directory = %s\n", a.directory)
	fmt.Fprintf(&b, "  mode = %s\n", a.mode)
	fmt.Fprintf(&b, "  checksum = %s\n", a.algorithm)
	b.WriteString("  fieldsTable = [\n")
	for _, name := range a.Fields() {
		fmt.Fprintf(&b, "    %s = {\n", name)
		for _, entry := range a.table[name] {
			fmt.Fprintf(&b, "      [ %d,\n", entry.Offset)
			fmt.Fprintf(&b, "        %s ]\n", entry.Checksum)
		}
		b.WriteString("    }\n")
	}
	b.WriteString("  ]\n")
	b.WriteString("]\n")
	return b.String()
}

func (a *Archive) dataPath(name string) string {
	return filepath.Join(a.directory, name+DataFileSuffix)
}

func (a *Archive) ledgerPath() string {
	return filepath.Join(a.directory, LedgerFileName)
}

func (a *Archive) updateLedgerGauges() {
	if a.metrics == nil {
		return
	}
	occurrences := 0
	for _, row := range a.table {
		occurrences += len(row)
	}
	a.metrics.LedgerFields.Set(float64(len(a.table)))
	a.metrics.LedgerOccurrences.Set(float64(occurrences))
}
