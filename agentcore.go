// Package agentcore provides a top-level convenience entry point for the
// agent orchestration core.
//
// Usage:
//
//	import "github.com/BaSui01/agentcore"
//
//	orch, err := agentcore.New(nil)
//	orch, err := agentcore.New(cfg, agentcore.WithLogger(logger))
//
// This is a thin wrapper around [orchestrator.New]; both produce identical
// results. Use this package when you prefer the shorter import path.
package agentcore

import (
	"github.com/BaSui01/agentcore/config"
	"github.com/BaSui01/agentcore/orchestrator"
)

// Option configures the orchestrator created by [New].
type Option = orchestrator.Option

// New creates an [orchestrator.Orchestrator]. A nil config uses
// [config.Default].
func New(cfg *config.Config, opts ...Option) (*orchestrator.Orchestrator, error) {
	return orchestrator.New(cfg, opts...)
}

// Re-export options so callers never need to import orchestrator/.

// WithLogger sets a custom zap logger.
var WithLogger = orchestrator.WithLogger

// WithSnapshotStore enables registry snapshot persistence.
var WithSnapshotStore = orchestrator.WithSnapshotStore
