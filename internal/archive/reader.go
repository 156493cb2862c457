package archive

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/havogt/serialbox2/internal/errors"
	"github.com/havogt/serialbox2/internal/model"
	"github.com/havogt/serialbox2/internal/util"
	"go.uber.org/zap"
)

// Read fills view with occurrence fieldID.ID of field fieldID.Name. The
// occurrence's checksum is verified before any byte reaches view.
func (a *Archive) Read(fieldID model.FieldID, view StorageView) (err error) {
	start := time.Now()
	size := 0
	defer func() {
		a.observeRead(size, start, err)
	}()

	entry, err := a.lookupForRead(fieldID)
	if err != nil {
		return err
	}

	buf, err := allocBuffer(view.SizeInBytes(), a.config.MaxBufferBytes)
	if err != nil {
		return err
	}
	if err := a.readOccurrence(fieldID, entry, buf); err != nil {
		return err
	}
	size = len(buf)

	return scatter(view, buf)
}

// ReadRaw returns the bytes of an occurrence without a destination view. The
// size is taken from the data file layout: the distance to the next
// occurrence, or to the end of the file for the last one.
func (a *Archive) ReadRaw(fieldID model.FieldID) (buf []byte, err error) {
	start := time.Now()
	defer func() {
		a.observeRead(len(buf), start, err)
	}()

	entry, err := a.lookupForRead(fieldID)
	if err != nil {
		return nil, err
	}

	size, err := a.occurrenceSize(fieldID)
	if err != nil {
		return nil, err
	}
	if size > int64(^uint(0)>>1) {
		return nil, errors.OutOfMemory(size, fmt.Errorf("occurrence does not fit in memory"))
	}

	out, err := allocBuffer(int(size), a.config.MaxBufferBytes)
	if err != nil {
		return nil, err
	}
	if err := a.readOccurrence(fieldID, entry, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Archive) lookupForRead(fieldID model.FieldID) (model.FileOffset, error) {
	if a.closed {
		return model.FileOffset{}, errors.Closed(a.directory)
	}
	if a.mode != model.OpenModeRead {
		return model.FileOffset{}, errors.InvalidMode("read", "'read'")
	}

	row, ok := a.table[fieldID.Name]
	if !ok {
		return model.FileOffset{}, errors.UnknownField(fieldID.Name)
	}
	if fieldID.ID < 0 || fieldID.ID >= len(row) {
		return model.FileOffset{}, errors.InvalidOccurrenceID(fieldID.Name, fieldID.ID, len(row))
	}
	return row[fieldID.ID], nil
}

// readOccurrence reads len(buf) bytes at entry.Offset of the field's data file
// and checks them against entry.Checksum
func (a *Archive) readOccurrence(fieldID model.FieldID, entry model.FileOffset, buf []byte) error {
	path := a.dataPath(fieldID.Name)
	f, err := os.Open(path)
	if err != nil {
		return errors.CannotOpenFile(path, err)
	}
	defer f.Close()

	return a.checkOccurrence(f, path, fieldID, entry, buf)
}

// checkOccurrence reads buf from r at entry.Offset and verifies its checksum
func (a *Archive) checkOccurrence(r io.ReaderAt, path string, fieldID model.FieldID, entry model.FileOffset, buf []byte) error {
	n, err := r.ReadAt(buf, entry.Offset)
	if n < len(buf) {
		if err == nil || err == io.EOF {
			// truncated data file, the recorded bytes are gone
			a.recordIntegrityFailure(fieldID, "short read")
			ierr := errors.IntegrityCheckFailed(fieldID.Name, fieldID.ID, entry.Checksum, "")
			ierr.Cause = io.ErrUnexpectedEOF
			return ierr.WithDetail("read_bytes", n).WithDetail("expected_bytes", len(buf))
		}
		return errors.Filesystem(fmt.Sprintf("cannot read file '%s'", path), err).WithDetail("path", path)
	}

	actual, ok := util.ValidateChecksum(a.algorithm, buf, entry.Checksum)
	if !ok {
		a.recordIntegrityFailure(fieldID, "checksum mismatch")
		return errors.IntegrityCheckFailed(fieldID.Name, fieldID.ID, entry.Checksum, actual)
	}
	return nil
}

// occurrenceSize infers the stored size of an occurrence from the back to back
// layout of the data file
func (a *Archive) occurrenceSize(fieldID model.FieldID) (int64, error) {
	row := a.table[fieldID.Name]
	offset := row[fieldID.ID].Offset

	if fieldID.ID+1 < len(row) {
		size := row[fieldID.ID+1].Offset - offset
		if size < 0 {
			return 0, errors.MetadataCorrupted(a.ledgerPath(),
				fmt.Errorf("offsets of field '%s' decrease at id %d", fieldID.Name, fieldID.ID+1))
		}
		return size, nil
	}

	path := a.dataPath(fieldID.Name)
	info, err := os.Stat(path)
	if err != nil {
		return 0, errors.CannotOpenFile(path, err)
	}
	if info.Size() < offset {
		a.recordIntegrityFailure(fieldID, "data file shorter than recorded offset")
		return 0, errors.IntegrityCheckFailed(fieldID.Name, fieldID.ID, row[fieldID.ID].Checksum, "").
			WithDetail("file_size", info.Size())
	}
	return info.Size() - offset, nil
}

func (a *Archive) recordIntegrityFailure(fieldID model.FieldID, reason string) {
	a.logger.Error("Integrity check failed",
		zap.String("field", fieldID.Name),
		zap.Int("id", fieldID.ID),
		zap.String("reason", reason))
	if a.metrics != nil {
		a.metrics.IntegrityFailures.Inc()
	}
}

func (a *Archive) observeRead(size int, start time.Time, err error) {
	if a.metrics == nil {
		return
	}
	if err != nil {
		a.metrics.ReadFailuresTotal.WithLabelValues(errors.GetCode(err).String()).Inc()
		return
	}
	a.metrics.ReadsTotal.Inc()
	a.metrics.ReadBytes.Observe(float64(size))
	a.metrics.ReadDuration.Observe(time.Since(start).Seconds())
}
