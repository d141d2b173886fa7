// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

// Package workpool fans a slice of independent tasks out across a
// bounded set of goroutines and waits for all of them.
//
// [Run] is a full barrier: it returns only after every started task
// has finished. The first task error cancels the context handed to the
// remaining tasks and is the error returned; tasks that have not
// started yet are skipped. Tasks must not depend on each other's
// completion order.
package workpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit is the worker count used when a caller passes a
// non-positive limit.
func DefaultLimit() int {
	return runtime.NumCPU()
}

// Run calls task once per item with at most limit calls in flight.
func Run[T any](ctx context.Context, limit int, items []T, task func(ctx context.Context, item T) error) error {
	if limit <= 0 {
		limit = DefaultLimit()
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	for _, item := range items {
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			return task(groupCtx, item)
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
