package media

import (
	"os"
	"sync"
)

// FileHandle is a local audio resource.
// Releasing it removes its cleanup path (a temp file or temp dir) exactly once;
// borrowed handles point at caller owned files and release as a no-op.
type FileHandle struct {
	path    string
	cleanup string
	remove  func(string) error

	once sync.Once
	err  error
}

// NewTempHandle returns a handle whose release removes cleanupPath.
// An empty cleanupPath means path itself is removed.
func NewTempHandle(path, cleanupPath string) *FileHandle {
	if cleanupPath == "" {
		cleanupPath = path
	}
	return &FileHandle{path: path, cleanup: cleanupPath, remove: os.RemoveAll}
}

// NewBorrowedHandle returns a handle to a file the job must not delete
func NewBorrowedHandle(path string) *FileHandle {
	return &FileHandle{path: path}
}

// Path returns the local file path of the audio
func (h *FileHandle) Path() string {
	return h.path
}

// Release removes the temporary files behind the handle. It is safe to call more than once.
func (h *FileHandle) Release() error {
	h.once.Do(func() {
		if h.cleanup == "" || h.remove == nil {
			return
		}
		h.err = h.remove(h.cleanup)
	})
	return h.err
}
