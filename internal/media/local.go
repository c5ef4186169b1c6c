package media

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuongbtq/transcribe-service/internal/domain"
)

// LocalResolver serves files that already exist under one of the allowed roots.
// The files stay owned by whoever put them there.
type LocalResolver struct {
	roots []string
	stat  func(name string) (os.FileInfo, error)
}

// NewLocalResolver allows files under the given root directories
func NewLocalResolver(roots []string) *LocalResolver {
	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		if abs, err := filepath.Abs(root); err == nil {
			cleaned = append(cleaned, filepath.Clean(abs))
		}
	}
	return &LocalResolver{roots: cleaned, stat: os.Stat}
}

// Resolve checks the file and returns a borrowed handle to it
func (r *LocalResolver) Resolve(ctx context.Context, locator string) (domain.Resource, error) {
	path := locator
	if strings.HasPrefix(strings.ToLower(locator), "file:") {
		u, err := url.Parse(locator)
		if err != nil {
			return nil, &domain.AcquisitionError{Locator: locator, Err: err}
		}
		path = u.Path
	}
	path = filepath.Clean(path)

	if !r.allowed(path) {
		return nil, &domain.AcquisitionError{Locator: locator, Err: fmt.Errorf("path is outside the allowed media roots")}
	}

	info, err := r.stat(path)
	if err != nil {
		return nil, &domain.AcquisitionError{Locator: locator, Err: err}
	}
	if info.IsDir() {
		return nil, &domain.AcquisitionError{Locator: locator, Err: fmt.Errorf("%s is a directory", path)}
	}
	if info.Size() == 0 {
		return nil, &domain.AcquisitionError{Locator: locator, Err: fmt.Errorf("%s is empty", path)}
	}

	return NewBorrowedHandle(path), nil
}

func (r *LocalResolver) allowed(path string) bool {
	for _, root := range r.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
