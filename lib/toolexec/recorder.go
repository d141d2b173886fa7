// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package toolexec

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Recorder is a Runner that records invocations instead of spawning
// processes. It is safe for concurrent use, so it can stand in for the
// real runner under the parallel stages.
type Recorder struct {
	// Handler, if set, is called for every invocation after it is
	// recorded. Its error is returned from Run. Handlers simulate tool
	// side effects and failures.
	Handler func(invocation Invocation) error

	mu    sync.Mutex
	calls []Invocation
}

// Run records the invocation and calls Handler.
func (r *Recorder) Run(ctx context.Context, invocation Invocation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	invocation.Args = slices.Clone(invocation.Args)
	r.mu.Lock()
	r.calls = append(r.calls, invocation)
	r.mu.Unlock()

	if r.Handler != nil {
		return r.Handler(invocation)
	}
	return nil
}

// Calls returns a copy of every recorded invocation in arrival order.
func (r *Recorder) Calls() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// CallsTo returns the recorded invocations of one tool.
func (r *Recorder) CallsTo(tool string) []Invocation {
	var matched []Invocation
	for _, call := range r.Calls() {
		if call.Tool == tool {
			matched = append(matched, call)
		}
	}
	return matched
}

// Fail returns a Handler that fails every invocation of tool with a
// synthetic exit error, delegating all others to next (which may be
// nil).
func Fail(tool string, next func(Invocation) error) func(Invocation) error {
	return func(invocation Invocation) error {
		if invocation.Tool == tool {
			return &Error{
				Stage: invocation.Stage,
				Tool:  invocation.Tool,
				Args:  invocation.Args,
				Err:   fmt.Errorf("exit status 1"),
			}
		}
		if next != nil {
			return next(invocation)
		}
		return nil
	}
}

// OutputPath returns the argument following the first of the given
// flags, for handlers that need to simulate an output file.
func OutputPath(args []string, flags ...string) (string, bool) {
	for i := 0; i < len(args)-1; i++ {
		if slices.Contains(flags, args[i]) {
			return args[i+1], true
		}
	}
	return "", false
}
