// Package ldapmodrate replaces attribute values on LDAP entries as fast as
// the rate gate allows, keeping a bounded number of modifications in flight
// across a per-thread pool of connections.
package ldapmodrate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/torosent/loadcore/internal/jobs"
	"github.com/torosent/loadcore/internal/ldapclient"
	"github.com/torosent/loadcore/internal/permit"
	"github.com/torosent/loadcore/internal/pool"
	"github.com/torosent/loadcore/internal/runner"
	"github.com/torosent/loadcore/internal/stat"
	"github.com/torosent/loadcore/internal/tracing"
)

const Name = "ldapmodrate"

// Statistic names.
const (
	StatCompleted = "Modifications Completed"
	StatDuration  = "Modification Duration"
	StatCodes     = jobs.ResultCodesName
	StatExceeded  = "Modifications Exceeding Threshold"
)

type Config struct {
	LDAP                  ldapclient.Config
	ConnectionsPerThread  int
	Policy                pool.Policy
	MaxOutstanding        int // per thread; 0 means unbounded
	DN1                   string
	DN2                   string
	DN1Percentage         int
	Attributes            []string
	ValueLength           int
	CharacterSet          string
	ResponseTimeThreshold time.Duration
}

// Dialer opens one connection. Tests replace it.
type Dialer func(ctx context.Context, cfg ldapclient.Config) (*ldapclient.Client, error)

type Option func(*Job)

func WithDialer(d Dialer) Option {
	return func(j *Job) { j.dial = d }
}

// WithSeed makes value and DN selection reproducible.
func WithSeed(seed uint64) Option {
	return func(j *Job) { j.seed = seed; j.seeded = true }
}

type Job struct {
	cfg    Config
	dn1    *Pattern
	dn2    *Pattern
	chars  []rune
	dial   Dialer
	seed   uint64
	seeded bool
}

var (
	_ runner.Job        = (*Job)(nil)
	_ runner.Classifier = (*Job)(nil)
)

func New(cfg Config, opts ...Option) (*Job, error) {
	if cfg.ConnectionsPerThread < 1 {
		cfg.ConnectionsPerThread = 1
	}
	if cfg.ValueLength < 1 {
		return nil, errors.New("ldapmodrate: value length must be >= 1")
	}
	if len(cfg.Attributes) == 0 {
		return nil, errors.New("ldapmodrate: at least one attribute is required")
	}
	if cfg.CharacterSet == "" {
		return nil, errors.New("ldapmodrate: character set must not be empty")
	}

	j := &Job{cfg: cfg, chars: []rune(cfg.CharacterSet), dial: ldapclient.Dial}
	var err error
	if j.dn1, err = ParsePattern(cfg.DN1); err != nil {
		return nil, fmt.Errorf("ldapmodrate: dn1: %w", err)
	}
	if cfg.DN1Percentage < 100 {
		if j.dn2, err = ParsePattern(cfg.DN2); err != nil {
			return nil, fmt.Errorf("ldapmodrate: dn2: %w", err)
		}
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// connTrackers are the statistics attributed to one connection.
type connTrackers struct {
	completed *stat.Counter
	duration  *stat.Duration
	codes     *stat.Categorical
	exceeded  *stat.Counter
}

type threadState struct {
	conns    *pool.Selector[*ldapclient.Client]
	trackers []connTrackers
	permits  *permit.Pool
	rng      *rand.Rand
	dn1      *Generator
	dn2      *Generator
	value    []rune
	logger   *zap.Logger
}

func (j *Job) InitializeThread(ctx context.Context, tc *runner.ThreadContext) error {
	conns := make([]*ldapclient.Client, 0, j.cfg.ConnectionsPerThread)
	for i := 0; i < j.cfg.ConnectionsPerThread; i++ {
		c, err := j.dial(ctx, j.cfg.LDAP)
		if err != nil {
			for _, open := range conns {
				_ = open.Close()
			}
			return fmt.Errorf("connection %d: %w", i, err)
		}
		conns = append(conns, c)
	}
	selector, err := pool.NewSelector(j.cfg.Policy, conns)
	if err != nil {
		for _, open := range conns {
			_ = open.Close()
		}
		return err
	}

	seed := uint64(time.Now().UnixNano())
	if j.seeded {
		seed = j.seed
	}
	rng := rand.New(rand.NewPCG(seed, uint64(tc.Index)))

	st := &threadState{
		conns:   selector,
		permits: permit.New(j.cfg.MaxOutstanding),
		rng:     rng,
		dn1:     j.dn1.Generator(rng),
		value:   make([]rune, j.cfg.ValueLength),
		logger:  tc.Logger,
	}
	if j.dn2 != nil {
		st.dn2 = j.dn2.Generator(rng)
	}
	for i := range conns {
		sub := fmt.Sprintf("%s-%d", tc.ThreadID, i)
		st.trackers = append(st.trackers, connTrackers{
			completed: tc.NewCounter(StatCompleted, sub),
			duration:  tc.NewDuration(StatDuration, sub),
			codes:     tc.NewCategorical(StatCodes, sub),
			exceeded:  tc.NewCounter(StatExceeded, sub),
		})
	}
	tc.Value = st
	return nil
}

func (j *Job) RunIteration(ctx context.Context, tc *runner.ThreadContext) (bool, error) {
	st := tc.Value.(*threadState)
	if err := st.permits.Acquire(ctx); err != nil {
		return false, err
	}

	idx, conn := st.conns.Next()
	var tr *connTrackers
	if tc.Collecting() {
		tr = &st.trackers[idx]
	}

	dn := j.nextDN(st)
	req := ldap.NewModifyRequest(dn, nil)
	value := j.nextValue(st)
	for _, attr := range j.cfg.Attributes {
		req.Replace(attr, []string{value})
	}

	_, span := tracing.StartOperationSpan(ctx, tc.Tracer, Name, "modify", dn, tc.ThreadID)
	err := conn.ModifyAsync(ctx, req, func(res ldapclient.Result) {
		j.complete(st, tr, res)
		tracing.EndSpan(span, res.Err, attribute.String("ldap.result_code", res.Code))
	})
	if err != nil {
		if tr != nil {
			tr.codes.Record(ldapclient.ResultCode(err))
		}
		st.release()
		tracing.EndSpan(span, err)
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
	}
	return false, nil
}

func (j *Job) nextDN(st *threadState) string {
	if st.dn2 == nil || st.rng.IntN(100) < j.cfg.DN1Percentage {
		return st.dn1.Next()
	}
	return st.dn2.Next()
}

func (j *Job) nextValue(st *threadState) string {
	for i := range st.value {
		st.value[i] = j.chars[st.rng.IntN(len(j.chars))]
	}
	return string(st.value)
}

// complete runs on the connection's goroutine. tr is nil for modifications
// submitted outside the measurement window.
func (j *Job) complete(st *threadState, tr *connTrackers, res ldapclient.Result) {
	if tr != nil {
		tr.codes.Record(res.Code)
		tr.completed.Increment()
		if j.cfg.ResponseTimeThreshold > 0 && res.Elapsed > j.cfg.ResponseTimeThreshold {
			tr.exceeded.Increment()
		}
		tr.duration.Record(res.Elapsed)
	}
	st.release()
}

func (st *threadState) release() {
	if err := st.permits.Release(); err != nil {
		st.logger.Error("permit release failed", zap.Error(err))
	}
}

// FinalizeThread waits for outstanding modifications, then closes the pool.
func (j *Job) FinalizeThread(ctx context.Context, tc *runner.ThreadContext) error {
	st, ok := tc.Value.(*threadState)
	if !ok {
		return nil
	}
	drainErr := st.permits.Wait(ctx)
	if drainErr != nil {
		tc.Logger.Warn("outstanding modifications abandoned",
			zap.Int("outstanding", st.permits.Outstanding()),
			zap.Error(drainErr))
		drainErr = fmt.Errorf("drain outstanding modifications: %w", drainErr)
	}
	tc.Logger.Debug("thread finished",
		zap.Int("peak_outstanding", st.permits.Peak()),
		zap.Int("connections", st.conns.Len()))
	return errors.Join(drainErr, st.conns.Close())
}

// Classify reports CompletedWithErrors when any modification failed.
func (j *Job) Classify(trackers []stat.Tracker) runner.Status {
	return jobs.ClassifyResultCodes(trackers, ldapclient.IsSuccess)
}
