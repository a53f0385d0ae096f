package contracts

// Package contracts defines the interface between the kernel and the worker
// fleet it orchestrates.
//
// The kernel never speaks a wire protocol itself. Whoever embeds it supplies
// one InvokeFunc that knows how to reach the workers; everything else
// (timeouts, retries, classification, shaping, audit) happens on this side
// of the seam.

import (
	"context"

	"github.com/basinops/basinops-kernel/pkg/types"
)

// InvokeFunc performs one tool invocation against a named worker.
//
// Contract: the function either returns a ToolResponse (possibly with
// Success=false and a populated Error) or returns a Go error. Returned Go
// errors are treated by the executor as retryable failures carrying the
// error's message. The context bounds the call; implementations that cannot
// honor cancellation are tolerated, in which case the kernel stops waiting
// and orphans the in-flight work.
type InvokeFunc func(ctx context.Context, serverName string, args map[string]any) (*types.ToolResponse, error)
