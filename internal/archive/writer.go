package archive

import (
	"fmt"
	"os"
	"time"

	"github.com/havogt/serialbox2/internal/errors"
	"github.com/havogt/serialbox2/internal/metrics"
	"github.com/havogt/serialbox2/internal/model"
	"github.com/havogt/serialbox2/internal/util"
	"go.uber.org/zap"
)

// Write serializes view as occurrence fieldID.ID of field fieldID.Name.
//
// An unknown field gets a fresh data file with the occurrence at offset 0.
// An id at or past the end of the field's row is appended at the end of the
// data file; ids are therefore expected in increasing order. An existing id is
// overwritten in place and must keep its original size, except for the last
// occurrence, whose data file is resized to fit. The ledger is persisted
// before Write returns unless DeferLedgerWrites is set.
func (a *Archive) Write(fieldID model.FieldID, view StorageView) (err error) {
	start := time.Now()
	kind := ""
	size := 0
	defer func() {
		a.observeWrite(kind, size, start, err)
	}()

	if a.closed {
		return errors.Closed(a.directory)
	}
	if a.mode == model.OpenModeRead {
		return errors.InvalidMode("write", "'write' or 'append'")
	}
	if err := a.validator.ValidateFieldID(fieldID); err != nil {
		return err
	}

	buf, err := allocBuffer(view.SizeInBytes(), a.config.MaxBufferBytes)
	if err != nil {
		return err
	}
	if err := gather(view, buf); err != nil {
		return err
	}
	size = len(buf)

	checksum := util.ComputeChecksum(a.algorithm, buf)

	if a.diskManager != nil {
		if err := a.diskManager.CheckBeforeWrite(uint64(len(buf))); err != nil {
			return errors.DiskFull(fmt.Sprintf("cannot write field '%s'", fieldID.Name), err).
				WithDetail("field", fieldID.Name).
				WithDetail("bytes", len(buf))
		}
	}

	path := a.dataPath(fieldID.Name)
	row, known := a.table[fieldID.Name]

	var offset int64
	switch {
	case !known:
		kind = metrics.WriteKindCreate
		if fieldID.ID != 0 {
			a.logger.Warn("First occurrence of field written with non-zero id, recording it as id 0",
				zap.String("field", fieldID.Name), zap.Int("id", fieldID.ID))
		}
		if err := a.writeDataFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, func(f *os.File) error {
			_, err := f.Write(buf)
			return err
		}); err != nil {
			return err
		}
		a.table[fieldID.Name] = model.FieldOffsetTable{{Offset: 0, Checksum: checksum}}

	case fieldID.ID >= len(row):
		kind = metrics.WriteKindAppend
		if fieldID.ID > len(row) {
			a.logger.Warn("Occurrence id skips ahead, appending as next id",
				zap.String("field", fieldID.Name),
				zap.Int("id", fieldID.ID),
				zap.Int("recorded_as", len(row)))
		}
		if err := a.writeDataFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, func(f *os.File) error {
			var err error
			offset, err = appendOccurrence(f, buf)
			return err
		}); err != nil {
			return err
		}
		a.table[fieldID.Name] = append(row, model.FileOffset{Offset: offset, Checksum: checksum})

	default:
		kind = metrics.WriteKindOverwrite
		offset = row[fieldID.ID].Offset
		last := fieldID.ID == len(row)-1
		if !last {
			stored := row[fieldID.ID+1].Offset - offset
			if stored != int64(len(buf)) {
				return errors.InvalidArgument(
					fmt.Sprintf("cannot overwrite %s: new size %d bytes differs from stored size %d bytes",
						fieldID, len(buf), stored), nil).
					WithDetail("field", fieldID.Name).
					WithDetail("id", fieldID.ID)
			}
		}
		if err := a.writeDataFile(path, os.O_WRONLY, func(f *os.File) error {
			if _, err := f.WriteAt(buf, offset); err != nil {
				return err
			}
			if last {
				return f.Truncate(offset + int64(len(buf)))
			}
			return nil
		}); err != nil {
			return err
		}
		row[fieldID.ID] = model.FileOffset{Offset: offset, Checksum: checksum}
	}

	a.dirty = true
	a.updateLedgerGauges()

	a.logger.Debug("Field written",
		zap.String("field", fieldID.Name),
		zap.Int("id", fieldID.ID),
		zap.String("kind", kind),
		zap.Int64("offset", offset),
		zap.Int("bytes", len(buf)))

	if a.config.DeferLedgerWrites {
		return nil
	}
	return a.persistLedger()
}

// writeDataFile opens path with flag, runs fn and closes the file. The file is
// synced first when SyncWrites is set.
func (a *Archive) writeDataFile(path string, flag int, fn func(f *os.File) error) error {
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return errors.CannotOpenFile(path, err)
	}

	if err := fn(f); err != nil {
		f.Close()
		return errors.Filesystem(fmt.Sprintf("cannot write file '%s'", path), err).WithDetail("path", path)
	}
	if a.config.SyncWrites {
		if err := f.Sync(); err != nil {
			f.Close()
			return errors.Filesystem(fmt.Sprintf("cannot sync file '%s'", path), err).WithDetail("path", path)
		}
	}
	if err := f.Close(); err != nil {
		return errors.Filesystem(fmt.Sprintf("cannot close file '%s'", path), err).WithDetail("path", path)
	}
	return nil
}

// appendFile is the part of *os.File used to append an occurrence
type appendFile interface {
	Stat() (os.FileInfo, error)
	Write(p []byte) (int, error)
	Truncate(size int64) error
}

// appendOccurrence writes buf at the end of f and returns its offset. A failed
// write is rolled back so that stray bytes never shift later offsets.
func appendOccurrence(f appendFile, buf []byte) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	offset := info.Size()
	if _, err := f.Write(buf); err != nil {
		if terr := f.Truncate(offset); terr != nil {
			return offset, fmt.Errorf("%w (rollback to %d bytes failed: %v)", err, offset, terr)
		}
		return offset, err
	}
	return offset, nil
}

func (a *Archive) observeWrite(kind string, size int, start time.Time, err error) {
	if a.metrics == nil {
		return
	}
	if err != nil {
		a.metrics.WriteFailuresTotal.WithLabelValues(errors.GetCode(err).String()).Inc()
		return
	}
	a.metrics.WritesTotal.WithLabelValues(kind).Inc()
	a.metrics.WriteBytes.Observe(float64(size))
	a.metrics.WriteDuration.Observe(time.Since(start).Seconds())
}
