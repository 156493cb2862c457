package archive

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/havogt/serialbox2/internal/errors"
	"github.com/havogt/serialbox2/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// VerifyFailure is one occurrence that failed verification
type VerifyFailure struct {
	FieldID model.FieldID
	Err     error
}

// VerifyReport summarizes a Verify run
type VerifyReport struct {
	Fields      int
	Occurrences int
	Bytes       int64
	Failures    []VerifyFailure
}

// OK reports whether every occurrence verified
func (r *VerifyReport) OK() bool {
	return len(r.Failures) == 0
}

// Verify checks every recorded occurrence of every field against its data
// file. Occurrence sizes are inferred from the data file layout. Up to
// parallelism fields are checked at once (0 = GOMAXPROCS). Corrupt
// occurrences are reported in the returned report; the error is reserved for
// cancellation and closed archives. Verify works in every mode.
func (a *Archive) Verify(ctx context.Context, parallelism int) (*VerifyReport, error) {
	if a.closed {
		return nil, errors.Closed(a.directory)
	}
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	// snapshot, so the workers never touch the live table
	fields := a.Fields()
	rows := make(map[string]model.FieldOffsetTable, len(fields))
	for _, name := range fields {
		rows[name], _ = a.FieldOffsets(name)
	}

	report := &VerifyReport{Fields: len(fields)}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for _, name := range fields {
		name := name
		g.Go(func() error {
			verified, bytes, failures, err := a.verifyField(ctx, name, rows[name])

			mu.Lock()
			defer mu.Unlock()
			report.Occurrences += verified
			report.Bytes += bytes
			report.Failures = append(report.Failures, failures...)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	// deterministic order regardless of scheduling
	sortFailures(report.Failures)

	a.logger.Info("Archive verified",
		zap.Int("fields", report.Fields),
		zap.Int("occurrences", report.Occurrences),
		zap.Int64("bytes", report.Bytes),
		zap.Int("failures", len(report.Failures)))

	return report, nil
}

func (a *Archive) verifyField(ctx context.Context, name string, row model.FieldOffsetTable) (int, int64, []VerifyFailure, error) {
	var failures []VerifyFailure
	path := a.dataPath(name)

	f, err := os.Open(path)
	if err != nil {
		for id := range row {
			failures = append(failures, VerifyFailure{
				FieldID: model.FieldID{Name: name, ID: id},
				Err:     errors.CannotOpenFile(path, err),
			})
		}
		return 0, 0, failures, nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, 0, nil, errors.Filesystem(fmt.Sprintf("cannot stat file '%s'", path), err)
	}

	verified := 0
	var bytes int64
	for id, entry := range row {
		if err := ctx.Err(); err != nil {
			return verified, bytes, failures, err
		}

		fieldID := model.FieldID{Name: name, ID: id}
		end := info.Size()
		if id+1 < len(row) {
			end = row[id+1].Offset
		}
		size := end - entry.Offset
		if size < 0 {
			failures = append(failures, VerifyFailure{
				FieldID: fieldID,
				Err: errors.MetadataCorrupted(a.ledgerPath(),
					fmt.Errorf("occurrence %s ends before it starts", fieldID)),
			})
			continue
		}

		buf, err := allocBuffer(int(size), a.config.MaxBufferBytes)
		if err != nil {
			failures = append(failures, VerifyFailure{FieldID: fieldID, Err: err})
			continue
		}
		if err := a.checkOccurrence(f, path, fieldID, entry, buf); err != nil {
			failures = append(failures, VerifyFailure{FieldID: fieldID, Err: err})
			continue
		}

		verified++
		bytes += size
		if a.metrics != nil {
			a.metrics.VerifiedOccurrences.Inc()
		}
	}
	return verified, bytes, failures, nil
}

func sortFailures(failures []VerifyFailure) {
	sort.Slice(failures, func(i, j int) bool {
		x, y := failures[i].FieldID, failures[j].FieldID
		if x.Name != y.Name {
			return x.Name < y.Name
		}
		return x.ID < y.ID
	})
}
