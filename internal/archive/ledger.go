package archive

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/havogt/serialbox2/internal/errors"
	"github.com/havogt/serialbox2/internal/model"
	"github.com/havogt/serialbox2/internal/util"
	"go.uber.org/zap"
)

// ledgerDocument is the on-disk form of the ledger. The version tags are
// pointers so that a ledger missing them is rejected instead of read as 0.
type ledgerDocument struct {
	FormatVersion           *int                     `json:"format_version"`
	ArchiveSubformatVersion *int                     `json:"archive_subformat_version"`
	ChecksumAlgorithm       string                   `json:"checksum_algorithm,omitempty"`
	Fields                  map[string][]ledgerEntry `json:"fields"`
}

// ledgerEntry is serialized as a two element array [offset, checksum]
type ledgerEntry model.FileOffset

func (e ledgerEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Offset, e.Checksum})
}

func (e *ledgerEntry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("ledger entry must be [offset, checksum], got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.Offset); err != nil {
		return fmt.Errorf("ledger entry offset: %w", err)
	}
	if e.Offset < 0 {
		return fmt.Errorf("ledger entry offset %d is negative", e.Offset)
	}
	if err := json.Unmarshal(raw[1], &e.Checksum); err != nil {
		return fmt.Errorf("ledger entry checksum: %w", err)
	}
	return nil
}

// loadLedger reads the ledger file into the in-memory field table. Write mode
// always starts empty; Append mode treats a missing ledger as a new archive.
func (a *Archive) loadLedger() error {
	a.table = make(model.FieldTable)
	a.dirty = false

	if a.mode == model.OpenModeWrite {
		return nil
	}

	path := a.ledgerPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			if a.mode == model.OpenModeAppend {
				return nil
			}
			return errors.MetadataNotFound(a.directory)
		}
		return errors.Filesystem(fmt.Sprintf("cannot read archive meta data '%s'", path), err).
			WithDetail("path", path)
	}

	var doc ledgerDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.MetadataCorrupted(path, err)
	}

	if doc.FormatVersion == nil || doc.ArchiveSubformatVersion == nil {
		return errors.MetadataCorrupted(path, fmt.Errorf("missing version tags"))
	}
	if *doc.FormatVersion != model.FormatVersion {
		return errors.VersionMismatch("format version",
			model.FormatVersionString(*doc.FormatVersion), model.FormatVersionString(model.FormatVersion))
	}
	if *doc.ArchiveSubformatVersion != model.ArchiveVersion {
		return errors.VersionMismatch("binary archive version", *doc.ArchiveSubformatVersion, model.ArchiveVersion)
	}

	// The recorded algorithm wins over the configured one, otherwise existing
	// checksums could not be verified
	algorithm, err := util.ParseAlgorithm(doc.ChecksumAlgorithm)
	if err != nil {
		return errors.MetadataCorrupted(path, err)
	}
	if algorithm != a.algorithm {
		a.logger.Info("Using checksum algorithm recorded in ledger",
			zap.String("recorded", string(algorithm)),
			zap.String("configured", string(a.algorithm)))
		a.algorithm = algorithm
	}

	for name, entries := range doc.Fields {
		// names become file names, a tampered ledger must not escape the directory
		if err := a.validator.ValidateFieldName(name); err != nil {
			return errors.MetadataCorrupted(path, err).WithDetail("field", name)
		}
		row := make(model.FieldOffsetTable, len(entries))
		for i, entry := range entries {
			row[i] = model.FileOffset(entry)
		}
		a.table[name] = row
	}

	a.logger.Debug("Ledger loaded", zap.String("path", path), zap.Int("fields", len(a.table)))
	return nil
}

// persistLedger rewrites the whole ledger file if the table is dirty. The
// file is replaced atomically, so readers see either the old or new ledger.
func (a *Archive) persistLedger() error {
	if !a.dirty {
		return nil
	}

	start := time.Now()
	formatVersion := model.FormatVersion
	archiveVersion := model.ArchiveVersion
	doc := ledgerDocument{
		FormatVersion:           &formatVersion,
		ArchiveSubformatVersion: &archiveVersion,
		ChecksumAlgorithm:       string(a.algorithm),
		Fields:                  make(map[string][]ledgerEntry, len(a.table)),
	}
	for name, row := range a.table {
		entries := make([]ledgerEntry, len(row))
		for i, entry := range row {
			entries[i] = ledgerEntry(entry)
		}
		doc.Fields[name] = entries
	}

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return errors.Filesystem("cannot encode archive meta data", err)
	}
	data = append(data, '\n')

	path := a.ledgerPath()
	if err := writeFileAtomic(path, data, a.config.SyncWrites); err != nil {
		return errors.Filesystem(fmt.Sprintf("cannot write archive meta data '%s'", path), err).
			WithDetail("path", path)
	}

	a.dirty = false
	if a.metrics != nil {
		a.metrics.LedgerPersistsTotal.Inc()
		a.metrics.LedgerPersistDuration.Observe(time.Since(start).Seconds())
	}
	a.logger.Debug("Ledger persisted", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// writeFileAtomic writes data to a temporary file next to path and renames it
// over path
func writeFileAtomic(path string, data []byte, sync bool) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if sync {
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	tmpPath = ""
	return nil
}
