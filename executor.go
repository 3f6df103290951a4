package rerun

import (
	"context"
	"fmt"
	"runtime"
)

// Executor drives a unit of asynchronous work to completion.
//
// Errors returned by work propagate unchanged. Failures of the executor itself
// are reported as ErrRuntimeScheduling.
type Executor interface {
	Execute(ctx context.Context, work func(context.Context) error) error
}

// SpawnExecutor runs work on its own goroutine and joins it.
//
// The caller stops waiting when ctx is done; the spawned work observes the same
// ctx and is expected to return promptly.
type SpawnExecutor struct{}

// InlineExecutor runs work in place on the calling goroutine.
//
// Use it on hosts where spawning is unavailable or undesirable, such as a
// single-threaded js/wasm runtime or a UI event loop that must own the call.
type InlineExecutor struct{}

var (
	_ Executor = SpawnExecutor{}
	_ Executor = InlineExecutor{}
)

func (SpawnExecutor) Execute(ctx context.Context, work func(context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- newError(ErrRuntimeScheduling, fmt.Sprintf("spawned work panicked: %v", r))
			}
		}()
		done <- work(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return wrapError(ErrRuntimeScheduling, "join aborted", ctx.Err())
	}
}

func (InlineExecutor) Execute(ctx context.Context, work func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return wrapError(ErrRuntimeScheduling, "work not started", err)
	}
	return work(ctx)
}

// DetectExecutor picks the executor suited to the host once, at startup.
func DetectExecutor() Executor {
	switch runtime.GOOS {
	case "js", "wasip1":
		return InlineExecutor{}
	default:
		return SpawnExecutor{}
	}
}

// ExecutorByName resolves an executor from its configuration name: auto, spawn or inline.
func ExecutorByName(name string) (Executor, error) {
	switch name {
	case "", ExecutorAuto:
		return DetectExecutor(), nil
	case ExecutorSpawn:
		return SpawnExecutor{}, nil
	case ExecutorInline:
		return InlineExecutor{}, nil
	default:
		return nil, newError(ErrConfiguration, fmt.Sprintf("unknown executor %q", name))
	}
}

// Run executes work with ex and returns its result.
func Run[T any](ctx context.Context, ex Executor, work func(context.Context) (T, error)) (T, error) {
	var result T
	if ex == nil {
		return result, newError(ErrRuntimeScheduling, "no executor registered")
	}
	err := ex.Execute(ctx, func(ctx context.Context) error {
		v, err := work(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
