// Package httprate sends one HTTP request per iteration and records status,
// latency and response size.
package httprate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"

	"github.com/torosent/loadcore/internal/config"
	"github.com/torosent/loadcore/internal/httpclient"
	"github.com/torosent/loadcore/internal/jobs"
	"github.com/torosent/loadcore/internal/runner"
	"github.com/torosent/loadcore/internal/stat"
	"github.com/torosent/loadcore/internal/tracing"
)

const Name = "httprate"

// Statistic names.
const (
	StatCompleted = "Requests Completed"
	StatDuration  = "Request Duration"
	StatCodes     = jobs.ResultCodesName
	StatSize      = "Response Size"
	StatExceeded  = "Requests Exceeding Threshold"
)

// Error classes recorded in place of a status when no response arrived.
const (
	LabelTimeout    = "Timeout"
	LabelCanceled   = "Canceled"
	LabelConnection = "Connection Error"
	LabelError      = "Error"
)

// maxLabelBody caps how much of a response is buffered for label extraction.
const maxLabelBody = 1 << 20

type Config struct {
	HTTP                  config.HTTPConfig
	ResponseTimeThreshold time.Duration
	// Propagate injects W3C trace context headers into each request.
	Propagate bool
}

type Job struct {
	cfg     Config
	builder *httpclient.RequestBuilder
}

var (
	_ runner.Job        = (*Job)(nil)
	_ runner.Classifier = (*Job)(nil)
)

func New(cfg Config) (*Job, error) {
	builder, err := httpclient.NewRequestBuilder(cfg.HTTP)
	if err != nil {
		return nil, fmt.Errorf("httprate: %w", err)
	}
	return &Job{cfg: cfg, builder: builder}, nil
}

type threadState struct {
	client    *http.Client
	completed *stat.Counter
	duration  *stat.Duration
	codes     *stat.Categorical
	size      *stat.Value
	exceeded  *stat.Counter
}

func (j *Job) InitializeThread(_ context.Context, tc *runner.ThreadContext) error {
	tc.Value = &threadState{
		client:    httpclient.NewClient(j.cfg.HTTP.Timeout, 1),
		completed: tc.NewCounter(StatCompleted, tc.ThreadID),
		duration:  tc.NewDuration(StatDuration, tc.ThreadID),
		codes:     tc.NewCategorical(StatCodes, tc.ThreadID),
		size:      tc.NewValue(StatSize, tc.ThreadID),
		exceeded:  tc.NewCounter(StatExceeded, tc.ThreadID),
	}
	return nil
}

func (j *Job) RunIteration(ctx context.Context, tc *runner.ThreadContext) (bool, error) {
	st := tc.Value.(*threadState)

	spanCtx, span := tracing.StartOperationSpan(ctx, tc.Tracer, Name, j.builder.Method(), j.builder.Target(), tc.ThreadID)
	req, err := j.builder.Build(spanCtx)
	if err != nil {
		tracing.EndSpan(span, err)
		return false, err
	}
	if j.cfg.Propagate {
		tracing.InjectHTTPHeaders(spanCtx, req.Header)
	}

	start := time.Now()
	label, size, err := j.do(st.client, req)
	elapsed := time.Since(start)
	tracing.EndSpan(span, err, attribute.String("http.result", label))

	if ctx.Err() != nil && err != nil {
		return false, nil
	}
	if !tc.Collecting() {
		return false, nil
	}
	st.codes.Record(label)
	st.completed.Increment()
	if err == nil {
		st.size.Record(size)
	}
	if j.cfg.ResponseTimeThreshold > 0 && elapsed > j.cfg.ResponseTimeThreshold {
		st.exceeded.Increment()
	}
	st.duration.Record(elapsed)
	return false, nil
}

// do sends req and returns the result label and the response body size.
func (j *Job) do(client *http.Client, req *http.Request) (string, int64, error) {
	resp, err := client.Do(req)
	if err != nil {
		return errorLabel(err), 0, err
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	if j.cfg.HTTP.LabelPath == "" {
		n, err := io.Copy(io.Discard, resp.Body)
		if err != nil {
			return errorLabel(err), n, err
		}
		return status, n, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLabelBody))
	if err != nil {
		return errorLabel(err), int64(len(body)), err
	}
	n := int64(len(body))
	rest, _ := io.Copy(io.Discard, resp.Body)
	n += rest
	if v := gjson.GetBytes(body, j.cfg.HTTP.LabelPath); v.Exists() && v.String() != "" {
		return strconv.Itoa(resp.StatusCode) + " " + v.String(), n, nil
	}
	return status, n, nil
}

func statusLabel(code int) string {
	if text := http.StatusText(code); text != "" {
		return strconv.Itoa(code) + " " + text
	}
	return strconv.Itoa(code)
}

func errorLabel(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return LabelCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return LabelTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return LabelTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return LabelConnection
	}
	return LabelError
}

// IsSuccess reports whether label starts with a 2xx or 3xx status code.
func IsSuccess(label string) bool {
	if len(label) < 3 {
		return false
	}
	code, err := strconv.Atoi(label[:3])
	if err != nil {
		return false
	}
	return code >= 200 && code < 400
}

func (j *Job) FinalizeThread(_ context.Context, tc *runner.ThreadContext) error {
	if st, ok := tc.Value.(*threadState); ok {
		st.client.CloseIdleConnections()
	}
	return nil
}

// Classify reports CompletedWithErrors when any request failed or returned
// a status outside 2xx and 3xx.
func (j *Job) Classify(trackers []stat.Tracker) runner.Status {
	return jobs.ClassifyResultCodes(trackers, IsSuccess)
}
