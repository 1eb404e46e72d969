// Package runner executes a load-generation job on a fixed pool of threads.
//
// Each thread runs the same [Job]: InitializeThread once, then RunIteration
// in a loop, then FinalizeThread. The loop polls the stop signal, asks the
// configured [gate.Gate] for permission, advances the thread's measurement
// window and only then performs the iteration:
//
//	r := runner.New(job, runner.Options{
//		JobID:    "01HZX...",
//		Threads:  8,
//		Duration: 10 * time.Minute,
//		WarmUp:   time.Minute,
//		CoolDown: time.Minute,
//	})
//	res := r.Run(ctx)
//
// # Measurement
//
// Trackers are created through the [ThreadContext] helpers during
// InitializeThread. The runner starts them when the warm-up ends, stops them
// when the cool-down begins, and pairs any tracker still open when the thread
// exits. After all threads finish, trackers sharing a name and shape are
// aggregated into [Result.Trackers].
//
// # Status
//
// An error from InitializeThread or RunIteration stops every thread and the
// run ends with [StoppedDueToError]. Otherwise a job implementing
// [Classifier] decides between [Success] and [CompletedWithErrors].
//
// # Stopping
//
// The scheduled stop is enforced through the context passed to the job.
// FinalizeThread gets a context detached from that cancellation so that
// asynchronous jobs can wait for in-flight completions, bounded by
// Options.DrainTimeout.
package runner
