// Package stat provides the per-thread statistic trackers used by load jobs.
//
// A tracker records one statistic for one thread (or one connection within a
// thread) as a sequence of fixed-length interval buckets. Trackers are created
// when a thread initializes, started and stopped by the measurement window,
// and merged into a single job-level view once every thread has finished.
//
// # Shapes
//
// Five shapes are available, each created through a [Factory]:
//   - [Counter]: discrete events, reported as a per-interval count
//   - [Duration]: elapsed times with count, sum, min, max and percentiles
//   - [Categorical]: label frequencies, such as protocol result codes
//   - [Value]: a distribution of observed integers
//   - [Accumulator]: a running total that interval boundaries never reset
//
// # Lifecycle
//
//	f := stat.NewFactory(stat.WithLogger(logger))
//	completed := f.Counter(stat.Identity{
//		OwnerID:    clientID,
//		SubOwnerID: threadID,
//		Name:       "Requests Completed",
//		Interval:   10 * time.Second,
//	})
//	completed.Start()
//	completed.Increment()
//	completed.Stop()
//
// Records made before Start or after Stop are dropped and counted in
// Dropped. Start and Stop only take effect once per tracker.
//
// # Aggregation
//
// [Aggregate] merges trackers that share a shape, a name and a collection
// interval. Bucket i of the result merges bucket i of every input, and
// trackers with fewer buckets contribute empty buckets. All inputs must be
// stopped. Mismatched inputs fail with an [IncompatibleTrackerError]:
//
//	merged, err := stat.Aggregate(perThread)
//
// # Thread Safety
//
// Every tracker guards its state with a mutex, so asynchronous completion
// callbacks may record into a tracker owned by another goroutine.
//
// # Real-Time Reporting
//
// A tracker given a [Reporter] through EnableRealTimeReporting pushes each
// closed interval as it rolls over, and signals Done when it stops. Reporter
// implementations must not block.
package stat
