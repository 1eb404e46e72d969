// Package ldapmoddn renames a numbered range of LDAP entries twice. The first
// pass appends the job ID to each entry's RDN value, the second pass removes
// it again, and no thread starts the second pass until every thread has
// finished the first.
package ldapmoddn

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/torosent/loadcore/internal/barrier"
	"github.com/torosent/loadcore/internal/jobs"
	"github.com/torosent/loadcore/internal/ldapclient"
	"github.com/torosent/loadcore/internal/runner"
	"github.com/torosent/loadcore/internal/stat"
	"github.com/torosent/loadcore/internal/tracing"
)

const Name = "ldapmoddn"

// Statistic names.
const (
	StatCompleted = "Modify DN Operations Completed"
	StatDuration  = "Modify DN Duration"
	StatCodes     = jobs.ResultCodesName
	StatRenamed   = "Entries Renamed"
	StatExceeded  = "Modify DN Exceeding Threshold"
)

type Config struct {
	LDAP                  ldapclient.Config
	ParentDN              string
	RDNAttribute          string
	RDNPrefix             string
	RDNSuffix             string
	RangeStart            int64
	RangeEnd              int64
	TimeBetweenRequests   time.Duration
	ResponseTimeThreshold time.Duration
}

// Dialer opens one connection. Tests replace it.
type Dialer func(ctx context.Context, cfg ldapclient.Config) (*ldapclient.Client, error)

type Option func(*Job)

func WithDialer(d Dialer) Option {
	return func(j *Job) { j.dial = d }
}

type Job struct {
	cfg  Config
	dial Dialer

	// Set by InitializeClient.
	barrier *barrier.Barrier
	tag     string
}

var (
	_ runner.Job               = (*Job)(nil)
	_ runner.ClientInitializer = (*Job)(nil)
	_ runner.Classifier        = (*Job)(nil)
)

func New(cfg Config, opts ...Option) (*Job, error) {
	if cfg.ParentDN == "" {
		return nil, errors.New("ldapmoddn: parent DN is required")
	}
	if cfg.RDNAttribute == "" {
		return nil, errors.New("ldapmoddn: RDN attribute is required")
	}
	if cfg.RangeEnd < cfg.RangeStart {
		return nil, fmt.Errorf("ldapmoddn: range end %d is below range start %d", cfg.RangeEnd, cfg.RangeStart)
	}
	j := &Job{cfg: cfg, dial: ldapclient.Dial}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// InitializeClient sizes the barrier for every thread of the run.
func (j *Job) InitializeClient(_ context.Context, info runner.ClientInfo) error {
	b, err := barrier.New(info.Threads, j.cfg.RangeStart, j.cfg.RangeEnd)
	if err != nil {
		return err
	}
	j.barrier = b
	j.tag = "-" + info.JobID
	if info.JobID == "" {
		j.tag = "-" + info.ClientID
	}
	return nil
}

type threadState struct {
	conn      *ldapclient.Client
	arrived   bool
	secondRun bool

	completed *stat.Counter
	duration  *stat.Duration
	codes     *stat.Categorical
	renamed   *stat.Accumulator
	exceeded  *stat.Counter
}

func (j *Job) InitializeThread(ctx context.Context, tc *runner.ThreadContext) error {
	if j.barrier == nil {
		return errors.New("ldapmoddn: client not initialized")
	}
	conn, err := j.dial(ctx, j.cfg.LDAP)
	if err != nil {
		return err
	}
	st := &threadState{
		conn:      conn,
		completed: tc.NewCounter(StatCompleted, tc.ThreadID),
		duration:  tc.NewDuration(StatDuration, tc.ThreadID),
		codes:     tc.NewCategorical(StatCodes, tc.ThreadID),
		renamed:   tc.NewAccumulator(StatRenamed, tc.ThreadID),
		exceeded:  tc.NewCounter(StatExceeded, tc.ThreadID),
	}
	tc.Value = st
	return nil
}

func (j *Job) RunIteration(ctx context.Context, tc *runner.ThreadContext) (bool, error) {
	st := tc.Value.(*threadState)
	n, ok := j.barrier.Next()
	if !ok {
		if st.secondRun {
			return true, nil
		}
		return j.arrive(ctx, tc, st)
	}

	started := time.Now()
	dn, newRDN := j.names(n, st.secondRun)
	operation := "rename"
	if st.secondRun {
		operation = "restore"
	}

	_, span := tracing.StartOperationSpan(ctx, tc.Tracer, Name, operation, dn, tc.ThreadID)
	res := st.conn.ModifyDN(ctx, ldap.NewModifyDNRequest(dn, newRDN, true, ""))
	tracing.EndSpan(span, res.Err, attribute.String("ldap.result_code", res.Code))

	if ctx.Err() != nil && errors.Is(res.Err, ctx.Err()) {
		return false, nil
	}
	if tc.Collecting() {
		st.codes.Record(res.Code)
		st.completed.Increment()
		if res.Err == nil {
			st.renamed.Increment()
		}
		if j.cfg.ResponseTimeThreshold > 0 && res.Elapsed > j.cfg.ResponseTimeThreshold {
			st.exceeded.Increment()
		}
		st.duration.Record(res.Elapsed)
	}
	if res.Err != nil {
		tc.Logger.Debug("modify DN failed", zap.String("dn", dn), zap.String("result_code", res.Code))
	}

	pause(ctx, j.cfg.TimeBetweenRequests-time.Since(started))
	return false, nil
}

// arrive parks the thread at the barrier after its first pass. A stop or
// cancellation while waiting ends the thread; a desynchronized barrier ends
// the run.
func (j *Job) arrive(ctx context.Context, tc *runner.ThreadContext, st *threadState) (bool, error) {
	tc.Logger.Debug("first pass exhausted, waiting for other threads")
	st.arrived = true
	if err := j.barrier.Arrive(ctx, tc.ShouldStop); err != nil {
		if errors.Is(err, barrier.ErrDesync) {
			return false, err
		}
		tc.Logger.Info("stopped while waiting for the second pass", zap.Error(err))
		return true, nil
	}
	st.secondRun = true
	return false, nil
}

// names returns the current DN of entry n and the RDN it is renamed to.
func (j *Job) names(n int64, secondRun bool) (dn, newRDN string) {
	base := j.cfg.RDNAttribute + "=" + j.cfg.RDNPrefix + strconv.FormatInt(n, 10) + j.cfg.RDNSuffix
	if secondRun {
		return base + j.tag + "," + j.cfg.ParentDN, base
	}
	return base + "," + j.cfg.ParentDN, base + j.tag
}

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// FinalizeThread counts a thread that stopped during the first pass out of
// the barrier, so threads already waiting are not left behind.
func (j *Job) FinalizeThread(_ context.Context, tc *runner.ThreadContext) error {
	st, ok := tc.Value.(*threadState)
	if !ok {
		return nil
	}
	var leaveErr error
	if !st.arrived {
		tc.Logger.Debug("leaving before the first pass finished")
		leaveErr = j.barrier.Leave()
	}
	return errors.Join(leaveErr, st.conn.Close())
}

// Classify reports CompletedWithErrors when any rename failed.
func (j *Job) Classify(trackers []stat.Tracker) runner.Status {
	return jobs.ClassifyResultCodes(trackers, ldapclient.IsSuccess)
}
