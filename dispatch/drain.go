package dispatch

import "context"

// Drain blocks until every in-flight request handler has finished, or ctx
// is done. It is a best-effort grace period for Serve to give outstanding
// handlers a chance to reply before the connection is torn down on exit,
// mirroring the teacher's bounded pendingReqs.Wait before process exit.
func (d *Dispatcher) Drain(ctx context.Context) error {
	if err := d.sem.Acquire(ctx, d.concurrency); err != nil {
		return err
	}
	d.sem.Release(d.concurrency)
	return nil
}
