package archive

import (
	"fmt"

	"github.com/havogt/serialbox2/internal/errors"
)

// allocBuffer allocates a contiguous buffer of size bytes, reporting sizes
// above limit (when limit > 0) and failed allocations as OutOfMemory
func allocBuffer(size int, limit int64) (buf []byte, err error) {
	if size < 0 {
		return nil, errors.OutOfMemory(int64(size), fmt.Errorf("negative buffer size"))
	}
	if limit > 0 && int64(size) > limit {
		return nil, errors.OutOfMemory(int64(size), fmt.Errorf("buffer limit is %d bytes", limit)).
			WithDetail("limit", limit)
	}

	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = errors.OutOfMemory(int64(size), fmt.Errorf("%v", r))
		}
	}()
	return make([]byte, size), nil
}

// gather copies the elements of view into buf back to back
func gather(view StorageView, buf []byte) error {
	bytesPerElement := view.BytesPerElement()
	pos := 0
	var bad error

	view.Iterate(func(element []byte) bool {
		if len(element) != bytesPerElement {
			bad = fmt.Errorf("element of %d bytes in a view of %d-byte elements", len(element), bytesPerElement)
			return false
		}
		if pos+len(element) > len(buf) {
			bad = fmt.Errorf("view traversal exceeds its declared size of %d bytes", len(buf))
			return false
		}
		pos += copy(buf[pos:], element)
		return true
	})

	if bad == nil && pos != len(buf) {
		bad = fmt.Errorf("view traversal produced %d bytes, declared size is %d", pos, len(buf))
	}
	if bad != nil {
		return errors.InvalidArgument("inconsistent storage view", bad)
	}
	return nil
}

// scatter copies buf back into the elements of view, in gather order
func scatter(view StorageView, buf []byte) error {
	bytesPerElement := view.BytesPerElement()
	pos := 0
	var bad error

	view.Iterate(func(element []byte) bool {
		if len(element) != bytesPerElement {
			bad = fmt.Errorf("element of %d bytes in a view of %d-byte elements", len(element), bytesPerElement)
			return false
		}
		if pos+len(element) > len(buf) {
			bad = fmt.Errorf("view traversal exceeds its declared size of %d bytes", len(buf))
			return false
		}
		pos += copy(element, buf[pos:pos+len(element)])
		return true
	})

	if bad == nil && pos != len(buf) {
		bad = fmt.Errorf("view traversal consumed %d bytes, declared size is %d", pos, len(buf))
	}
	if bad != nil {
		return errors.InvalidArgument("inconsistent storage view", bad)
	}
	return nil
}
