package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Batch calls fn for every item using at most workers goroutines and waits
// for all of them. Each call gets its own timeout derived from ctx. Items
// not yet started when ctx is done are reported with ctx's error.
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	log logrus.FieldLogger, fn func(context.Context, T) error) []error {

	if len(items) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	work := make(chan T)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				if err := run(ctx, timeout, taskName, log, func(ctx context.Context) error {
					return fn(ctx, item)
				}); err != nil {
					record(err)
				}
			}
		}()
	}

	for i, item := range items {
		select {
		case work <- item:
		case <-ctx.Done():
			for range items[i:] {
				record(fmt.Errorf("%s: %w", taskName, ctx.Err()))
			}
			close(work)
			wg.Wait()
			return errs
		}
	}
	close(work)
	wg.Wait()
	return errs
}

// run calls fn with a timeout and turns a panic into an error
func run(parent context.Context, timeout time.Duration, taskName string, log logrus.FieldLogger,
	fn func(context.Context) error) (err error) {

	ctx, cancel := parent, context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	}
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{
				"task":  taskName,
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Recovered panic in background task")
			err = fmt.Errorf("%s: panic: %v", taskName, r)
		}
	}()

	return fn(ctx)
}
