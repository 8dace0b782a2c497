// Package async runs bounded fan-out work with panic recovery and per-task
// timeouts.
//
// Batch processes a slice on a fixed number of workers and returns every
// error, including recovered panics:
//
//	errs := async.Batch(ctx, actors, 8, "close tenant actors", 5*time.Second, log,
//		func(ctx context.Context, a *tenant.Actor) error {
//			return a.Shutdown(ctx)
//		})
package async
