package archive

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFile is an in-memory appendFile whose writes stop after limit bytes
type memFile struct {
	data        []byte
	limit       int
	truncateErr error
}

func (m *memFile) Stat() (os.FileInfo, error) {
	return memInfo{size: int64(len(m.data))}, nil
}

func (m *memFile) Write(p []byte) (int, error) {
	if m.limit >= 0 && len(p) > m.limit {
		m.data = append(m.data, p[:m.limit]...)
		return m.limit, errors.New("no space left on device")
	}
	m.data = append(m.data, p...)
	return len(p), nil
}

func (m *memFile) Truncate(size int64) error {
	if m.truncateErr != nil {
		return m.truncateErr
	}
	m.data = m.data[:size]
	return nil
}

type memInfo struct {
	os.FileInfo
	size int64
}

func (i memInfo) Size() int64 { return i.size }

func TestAppendOccurrence(t *testing.T) {
	t.Run("appends at end of file", func(t *testing.T) {
		f := &memFile{data: []byte{1, 2, 3}, limit: -1}
		offset, err := appendOccurrence(f, []byte{4, 5})
		require.NoError(t, err)
		assert.Equal(t, int64(3), offset)
		assert.Equal(t, []byte{1, 2, 3, 4, 5}, f.data)
	})

	t.Run("partial write is rolled back", func(t *testing.T) {
		f := &memFile{data: []byte{1, 2, 3}, limit: 2}
		_, err := appendOccurrence(f, []byte{4, 5, 6, 7})
		require.Error(t, err)
		assert.Equal(t, []byte{1, 2, 3}, f.data)

		// the next append starts where the failed one did
		f.limit = -1
		offset, err := appendOccurrence(f, []byte{8})
		require.NoError(t, err)
		assert.Equal(t, int64(3), offset)
		assert.True(t, bytes.Equal([]byte{1, 2, 3, 8}, f.data))
	})

	t.Run("failed rollback is reported", func(t *testing.T) {
		f := &memFile{data: []byte{1}, limit: 0, truncateErr: errors.New("read-only file system")}
		_, err := appendOccurrence(f, []byte{2})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rollback to 1 bytes failed")
		assert.Contains(t, err.Error(), "no space left on device")
	})
}
