// Package media turns a source locator into a local audio file.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/cuongbtq/transcribe-service/internal/domain"
)

// Resolver produces a local audio resource for a source locator.
// Failures are reported as *domain.AcquisitionError.
type Resolver interface {
	Resolve(ctx context.Context, locator string) (domain.Resource, error)
}

// SchemeResolver dispatches remote locators to the downloader and
// file locators to the local resolver
type SchemeResolver struct {
	remote Resolver
	local  Resolver
	logger *slog.Logger
}

// NewSchemeResolver wires the remote and local resolvers. Either may be nil to disable it.
func NewSchemeResolver(remote, local Resolver, logger *slog.Logger) *SchemeResolver {
	return &SchemeResolver{remote: remote, local: local, logger: logger}
}

// Resolve picks a resolver from the locator scheme
func (r *SchemeResolver) Resolve(ctx context.Context, locator string) (domain.Resource, error) {
	kind, err := Classify(locator)
	if err != nil {
		return nil, &domain.AcquisitionError{Locator: locator, Err: err}
	}

	var target Resolver
	switch kind {
	case LocatorRemote:
		target = r.remote
	case LocatorLocal:
		target = r.local
	}
	if target == nil {
		return nil, &domain.AcquisitionError{Locator: locator, Err: fmt.Errorf("%s sources are disabled", kind)}
	}

	r.logger.Debug("Resolving source",
		slog.String("locator", locator),
		slog.String("kind", string(kind)),
	)
	return target.Resolve(ctx, locator)
}

// LocatorKind tells remote sources from local files
type LocatorKind string

const (
	LocatorRemote LocatorKind = "remote"
	LocatorLocal  LocatorKind = "local"
)

// Classify validates a locator and reports its kind
func Classify(locator string) (LocatorKind, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return "", fmt.Errorf("locator is required")
	}
	if filepath.IsAbs(locator) {
		return LocatorLocal, nil
	}

	u, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("invalid locator: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return "", fmt.Errorf("invalid locator: missing host")
		}
		return LocatorRemote, nil
	case "file":
		if u.Path == "" {
			return "", fmt.Errorf("invalid locator: empty file path")
		}
		return LocatorLocal, nil
	default:
		return "", fmt.Errorf("unsupported locator scheme %q", u.Scheme)
	}
}
