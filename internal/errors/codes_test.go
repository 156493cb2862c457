package errors_test

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/havogt/serialbox2/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *errors.ArchiveError
		code errors.ErrorCode
		want string
	}{
		{"not found", errors.NotFound("/data/x"), errors.ErrCodeNotFound, "no such directory: '/data/x'"},
		{"not empty", errors.DirectoryNotEmpty("/data/x"), errors.ErrCodeDirectoryNotEmpty, "directory '/data/x' is not empty"},
		{"unknown field", errors.UnknownField("u"), errors.ErrCodeUnknownField, "no field 'u' registered in archive"},
		{"invalid id", errors.InvalidOccurrenceID("u", 7, 2), errors.ErrCodeInvalidOccurrenceID, "invalid id '7' of field 'u' (2 occurrences)"},
		{"integrity", errors.IntegrityCheckFailed("u", 1, "aa", "bb"), errors.ErrCodeIntegrityCheckFailed, "hashsum mismatch for field 'u' at id '1'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestArchiveError_CauseAndUnwrap(t *testing.T) {
	err := errors.CannotOpenFile("/data/u.dat", fs.ErrPermission)

	assert.Contains(t, err.Error(), "cannot open file: '/data/u.dat'")
	assert.Contains(t, err.Error(), fs.ErrPermission.Error())
	assert.True(t, stderrors.Is(err, fs.ErrPermission))
	assert.Equal(t, "/data/u.dat", err.Details["path"])
}

func TestGetCode_SeesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("writing savepoint: %w", errors.UnknownField("v"))

	assert.True(t, errors.IsArchiveError(wrapped))
	assert.Equal(t, errors.ErrCodeUnknownField, errors.GetCode(wrapped))
	assert.True(t, errors.HasCode(wrapped, errors.ErrCodeUnknownField))
	assert.False(t, errors.HasCode(wrapped, errors.ErrCodeNotFound))
	assert.True(t, stderrors.Is(wrapped, &errors.ArchiveError{Code: errors.ErrCodeUnknownField}))
}

func TestGetCode_NonArchiveErrors(t *testing.T) {
	assert.Equal(t, errors.ErrCodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.ErrCodeFilesystem, errors.GetCode(fs.ErrNotExist))
	assert.False(t, errors.HasCode(nil, errors.ErrCodeOK))
	assert.False(t, errors.IsArchiveError(fs.ErrNotExist))
}

func TestErrorCode_String(t *testing.T) {
	require.Equal(t, "IntegrityCheckFailed", errors.ErrCodeIntegrityCheckFailed.String())
	require.Equal(t, "FilesystemError", errors.ErrCodeFilesystem.String())
	require.Equal(t, "ErrorCode(42)", errors.ErrorCode(42).String())
}
