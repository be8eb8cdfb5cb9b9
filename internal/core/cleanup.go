package core

import "context"

// CleanupFunc is a single teardown step registered with a ResourceCleaner.
type CleanupFunc func() error

// ResourceCleaner runs registered CleanupFuncs in reverse registration order
// during shutdown, collecting every error instead of stopping at the first.
type ResourceCleaner interface {
	Register(cleanup CleanupFunc)
	RegisterWithName(name string, cleanup CleanupFunc)
	Cleanup(ctx context.Context) []error
	Reset()
}
