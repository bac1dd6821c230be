package app

import (
	"context"
)

// component is a long-running part of the application with the shared
// lifecycle contract.
type component interface {
	Name() string
	Start(ctx context.Context) error
	Ready() <-chan struct{}
	Ping(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
