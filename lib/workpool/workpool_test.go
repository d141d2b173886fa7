// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package workpool

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"
)

func TestRunVisitsEveryItem(t *testing.T) {
	defer goleak.VerifyNone(t)

	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	var (
		mu   sync.Mutex
		seen = map[int]bool{}
	)
	err := Run(context.Background(), 3, items, func(ctx context.Context, item int) error {
		mu.Lock()
		seen[item] = true
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(seen) != len(items) {
		t.Errorf("visited %d items, want %d", len(seen), len(items))
	}
}

func TestRunRespectsLimit(t *testing.T) {
	defer goleak.VerifyNone(t)

	var inFlight, peak atomic.Int32
	items := make([]int, 12)

	err := Run(context.Background(), 2, items, func(ctx context.Context, _ int) error {
		current := inFlight.Add(1)
		for {
			old := peak.Load()
			if current <= old || peak.CompareAndSwap(old, current) {
				break
			}
		}
		runtime.Gosched()
		inFlight.Add(-1)
		return nil
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestRunReturnsFirstError(t *testing.T) {
	defer goleak.VerifyNone(t)

	failure := errors.New("linker exploded")
	err := Run(context.Background(), 1, []string{"a.o", "b.o", "c.o"}, func(ctx context.Context, item string) error {
		if item == "b.o" {
			return failure
		}
		return nil
	})
	if !errors.Is(err, failure) {
		t.Errorf("Run() error = %v, want %v", err, failure)
	}
}

func TestRunEmpty(t *testing.T) {
	defer goleak.VerifyNone(t)

	called := false
	err := Run(context.Background(), 0, []string(nil), func(ctx context.Context, item string) error {
		called = true
		return nil
	})
	if err != nil || called {
		t.Errorf("Run(empty) = %v, called=%v; want nil, false", err, called)
	}
}

func TestRunCancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	err := Run(ctx, 2, []int{1, 2, 3}, func(ctx context.Context, _ int) error {
		calls.Add(1)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if calls.Load() != 0 {
		t.Errorf("tasks ran after cancellation: %d", calls.Load())
	}
}
