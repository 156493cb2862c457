package archive_test

import (
	"context"
	"os"
	"testing"

	"github.com/havogt/serialbox2/internal/archive"
	"github.com/havogt/serialbox2/internal/errors"
	"github.com/havogt/serialbox2/internal/model"
	"github.com/havogt/serialbox2/internal/storageview"
	"github.com/havogt/serialbox2/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func populate(t *testing.T, dir string) {
	t.Helper()
	a := openArchive(t, dir, model.OpenModeWrite, nil)
	for _, name := range []string{"u", "v", "w"} {
		for id := 0; id < 4; id++ {
			data := []byte{byte(id), byte(id + 1), byte(id + 2)}
			require.NoError(t, a.Write(model.FieldID{Name: name, ID: id}, storageview.Bytes(data)))
		}
	}
	require.NoError(t, a.Close())
}

func TestVerify_CleanArchive(t *testing.T) {
	dir := testutil.NewDirectory(t).Path()
	populate(t, dir)

	for _, mode := range []model.OpenMode{model.OpenModeRead, model.OpenModeAppend} {
		a := openArchive(t, dir, mode, nil)
		report, err := a.Verify(context.Background(), 2)
		require.NoError(t, err)
		assert.True(t, report.OK())
		assert.Equal(t, 3, report.Fields)
		assert.Equal(t, 12, report.Occurrences)
		assert.Equal(t, int64(36), report.Bytes)
		require.NoError(t, a.Close())
	}
}

func TestVerify_ReportsCorruption(t *testing.T) {
	fixture := testutil.NewDirectory(t)
	populate(t, fixture.Path())

	data := fixture.ReadFile("v.dat")
	data[7] ^= 0x01 // occurrence 2
	fixture.WriteFile("v.dat", data)
	require.NoError(t, os.Remove(fixture.Join("w.dat")))

	a := openArchive(t, fixture.Path(), model.OpenModeRead, nil)
	report, err := a.Verify(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, 7, report.Occurrences)

	require.Len(t, report.Failures, 5)
	assert.Equal(t, model.FieldID{Name: "v", ID: 2}, report.Failures[0].FieldID)
	assert.Equal(t, errors.ErrCodeIntegrityCheckFailed, errors.GetCode(report.Failures[0].Err))
	for i, f := range report.Failures[1:] {
		assert.Equal(t, model.FieldID{Name: "w", ID: i}, f.FieldID)
		assert.Equal(t, errors.ErrCodeCannotOpenFile, errors.GetCode(f.Err))
	}
}

func TestVerify_TruncatedLastOccurrence(t *testing.T) {
	fixture := testutil.NewDirectory(t)
	populate(t, fixture.Path())
	require.NoError(t, os.Truncate(fixture.Join("u.dat"), 10))

	a := openArchive(t, fixture.Path(), model.OpenModeRead, nil)
	report, err := a.Verify(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, model.FieldID{Name: "u", ID: 3}, report.Failures[0].FieldID)
	assert.Equal(t, errors.ErrCodeIntegrityCheckFailed, errors.GetCode(report.Failures[0].Err))
}

func TestVerify_Cancelled(t *testing.T) {
	dir := testutil.NewDirectory(t).Path()
	populate(t, dir)

	a := openArchive(t, dir, model.OpenModeRead, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Verify(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerify_Closed(t *testing.T) {
	dir := testutil.NewDirectory(t).Path()
	populate(t, dir)

	a, err := archive.Open(dir, model.OpenModeRead, nil, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = a.Verify(context.Background(), 1)
	requireCode(t, err, errors.ErrCodeClosed)
}
