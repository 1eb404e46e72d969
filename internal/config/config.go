package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/torosent/loadcore/internal/gate"
	"github.com/torosent/loadcore/internal/pool"
)

// JobKind names one of the built-in jobs.
type JobKind string

const (
	JobHTTPRate    JobKind = "httprate"
	JobLDAPModRate JobKind = "ldapmodrate"
	JobLDAPModDN   JobKind = "ldapmoddn"
)

type Config struct {
	ConfigFile string `mapstructure:"-"`

	Job      JobKind       `mapstructure:"job"`
	JobID    string        `mapstructure:"job_id"`
	ClientID string        `mapstructure:"client_id"`
	Threads  int           `mapstructure:"threads"`
	Duration time.Duration `mapstructure:"duration"`

	WarmUp             time.Duration `mapstructure:"warm_up"`
	CoolDown           time.Duration `mapstructure:"cool_down"`
	CollectionInterval time.Duration `mapstructure:"collection_interval"`

	MaxOutstanding        int           `mapstructure:"max_outstanding"`
	DrainTimeout          time.Duration `mapstructure:"drain_timeout"`
	ResponseTimeThreshold time.Duration `mapstructure:"response_time_threshold"`

	Rate      RateConfig      `mapstructure:"rate"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	LDAP      LDAPConfig      `mapstructure:"ldap"`
	Reporting ReportingConfig `mapstructure:"reporting"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`

	Thresholds []string     `mapstructure:"thresholds"`
	Output     OutputConfig `mapstructure:"output"`
}

type LoadPatternType string

const (
	LoadPatternTypeRamp  LoadPatternType = "ramp"
	LoadPatternTypeStep  LoadPatternType = "step"
	LoadPatternTypeSpike LoadPatternType = "spike"
)

type LoadPattern struct {
	Name     string          `mapstructure:"name"`
	Type     LoadPatternType `mapstructure:"type"`
	FromRate float64         `mapstructure:"from_rate"`
	ToRate   float64         `mapstructure:"to_rate"`
	Rate     float64         `mapstructure:"rate"`
	Duration time.Duration   `mapstructure:"duration"`
	Steps    []LoadStep      `mapstructure:"steps"`
}

type LoadStep struct {
	Rate     float64       `mapstructure:"rate"`
	Duration time.Duration `mapstructure:"duration"`
}

// RateConfig paces operations across all threads. OpsPerInterval
// operations are allowed every Interval; a zero interval means the
// collection interval.
type RateConfig struct {
	OpsPerInterval int           `mapstructure:"ops_per_interval"`
	Interval       time.Duration `mapstructure:"interval"`
	ArrivalModel   string        `mapstructure:"arrival_model"`
	Patterns       []LoadPattern `mapstructure:"patterns"`
}

// GateOptions converts the rate settings into gate options.
func (r RateConfig) GateOptions(collectionInterval time.Duration) gate.Options {
	interval := r.Interval
	if interval <= 0 {
		interval = collectionInterval
	}
	opts := gate.Options{
		OpsPerInterval: r.OpsPerInterval,
		Interval:       interval,
		Model:          gate.Model(strings.ToLower(r.ArrivalModel)),
	}
	for _, p := range r.Patterns {
		gp := gate.Pattern{
			Type:     gate.PatternType(p.Type),
			Duration: p.Duration,
			From:     p.FromRate,
			To:       p.ToRate,
			Rate:     p.Rate,
		}
		for _, s := range p.Steps {
			gp.Steps = append(gp.Steps, gate.Step{Rate: s.Rate, Duration: s.Duration})
		}
		opts.Patterns = append(opts.Patterns, gp)
	}
	return opts
}

type HTTPConfig struct {
	URL       string            `mapstructure:"url"`
	Method    string            `mapstructure:"method"`
	Headers   map[string]string `mapstructure:"headers"`
	Body      string            `mapstructure:"body"`
	BodyFile  string            `mapstructure:"body_file"`
	Timeout   time.Duration     `mapstructure:"timeout"`
	LabelPath string            `mapstructure:"label_path"` // gjson path used as the result label
}

type LDAPConfig struct {
	URL                  string        `mapstructure:"url"`
	BindDN               string        `mapstructure:"bind_dn"`
	BindPassword         string        `mapstructure:"bind_password"`
	Timeout              time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify   bool          `mapstructure:"insecure_skip_verify"`
	ConnectionsPerThread int           `mapstructure:"connections_per_thread"`
	SelectionPolicy      string        `mapstructure:"selection_policy"`

	// Modify job.
	DN1           string   `mapstructure:"dn1"`
	DN2           string   `mapstructure:"dn2"`
	DN1Percentage int      `mapstructure:"dn1_percentage"`
	Attributes    []string `mapstructure:"attributes"`
	ValueLength   int      `mapstructure:"value_length"`
	CharacterSet  string   `mapstructure:"character_set"`

	// Modify DN job.
	ParentDN            string        `mapstructure:"parent_dn"`
	RDNAttribute        string        `mapstructure:"rdn_attribute"`
	RDNPrefix           string        `mapstructure:"rdn_prefix"`
	RDNSuffix           string        `mapstructure:"rdn_suffix"`
	RangeStart          int           `mapstructure:"range_start"`
	RangeEnd            int           `mapstructure:"range_end"`
	TimeBetweenRequests time.Duration `mapstructure:"time_between_requests"`
}

type ReportingConfig struct {
	Sink       string        `mapstructure:"sink"` // log, console, websocket, prometheus; empty disables
	URL        string        `mapstructure:"url"`
	Interval   time.Duration `mapstructure:"interval"`
	Listen     string        `mapstructure:"listen"`
	MaxPending int           `mapstructure:"max_pending"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // grpc or http
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint is configured directly or
// through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether W3C trace headers are injected. It
// follows Enabled unless Propagate is set explicitly.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type OutputConfig struct {
	Format string `mapstructure:"format"` // text, json or yaml
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	switch c.Job {
	case JobHTTPRate:
		issues = append(issues, validateHTTPConfig(c.HTTP)...)
	case JobLDAPModRate, JobLDAPModDN:
		issues = append(issues, validateLDAPConfig(c.Job, c.LDAP)...)
	case "":
		issues = append(issues, "job is required (httprate, ldapmodrate or ldapmoddn)")
	default:
		issues = append(issues, fmt.Sprintf("unsupported job %q (supported: httprate, ldapmodrate, ldapmoddn)", c.Job))
	}

	if c.Threads < 1 {
		issues = append(issues, "threads must be >= 1")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if c.WarmUp < 0 {
		issues = append(issues, "warm_up must be >= 0")
	}
	if c.CoolDown < 0 {
		issues = append(issues, "cool_down must be >= 0")
	}
	if c.Duration > 0 && c.WarmUp+c.CoolDown >= c.Duration {
		issues = append(issues, "warm_up plus cool_down must be shorter than duration")
	}
	if c.CollectionInterval <= 0 {
		issues = append(issues, "collection_interval must be > 0")
	}
	if c.DrainTimeout < 0 {
		issues = append(issues, "drain_timeout must be >= 0")
	}
	if c.ResponseTimeThreshold < 0 {
		issues = append(issues, "response_time_threshold must be >= 0")
	}

	issues = append(issues, validateRateConfig(c.Rate)...)
	issues = append(issues, validateReportingConfig(c.Reporting)...)
	issues = append(issues, validateOutputConfig(c.Output)...)

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing.sample_rate must be between 0.0 and 1.0, got %g", c.Tracing.SampleRate))
	}
	switch strings.ToLower(c.Tracing.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing.protocol must be 'grpc' or 'http', got %q", c.Tracing.Protocol))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		issues = append(issues, fmt.Sprintf("log.format must be 'json' or 'console', got %q", c.Log.Format))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

// Warnings returns advisories that do not prevent a run.
func (c Config) Warnings() []string {
	var warnings []string
	if c.Rate.OpsPerInterval > 0 && c.Rate.Interval > 0 && float64(c.Rate.OpsPerInterval)/c.Rate.Interval.Seconds() > 1000 {
		warnings = append(warnings, "high rate limit configured; ensure you have authorization to test the target system")
	}
	if c.Threads > 500 {
		warnings = append(warnings, fmt.Sprintf("high thread count configured (%d); ensure you have authorization to test the target system", c.Threads))
	}
	if c.CoolDown > 0 && c.Duration <= 0 {
		warnings = append(warnings, "cool_down has no effect without a duration")
	}
	if c.LDAP.InsecureSkipVerify {
		warnings = append(warnings, "LDAP TLS verification is disabled (insecure_skip_verify: true)")
	}
	return warnings
}

func validateHTTPConfig(h HTTPConfig) []string {
	var issues []string
	if strings.TrimSpace(h.URL) == "" {
		return append(issues, "http.url is required (use --help for usage information)")
	}
	u, err := url.Parse(h.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		issues = append(issues, fmt.Sprintf("http.url must be an absolute http(s) URL, got %q", h.URL))
	}
	if h.Body != "" && strings.TrimSpace(h.BodyFile) != "" {
		issues = append(issues, "http.body and http.body_file cannot both be set")
	}
	if h.Timeout < 0 {
		issues = append(issues, "http.timeout must be >= 0")
	}
	return issues
}

func validateLDAPConfig(job JobKind, l LDAPConfig) []string {
	var issues []string
	if strings.TrimSpace(l.URL) == "" {
		issues = append(issues, "ldap.url is required")
	}
	if l.ConnectionsPerThread < 1 {
		issues = append(issues, "ldap.connections_per_thread must be >= 1")
	}
	if _, err := pool.ParsePolicy(l.SelectionPolicy); err != nil {
		issues = append(issues, "ldap.selection_policy: "+err.Error())
	}

	switch job {
	case JobLDAPModRate:
		if strings.TrimSpace(l.DN1) == "" {
			issues = append(issues, "ldap.dn1 is required for ldapmodrate")
		}
		if l.DN1Percentage < 0 || l.DN1Percentage > 100 {
			issues = append(issues, "ldap.dn1_percentage must be between 0 and 100")
		}
		if l.DN1Percentage < 100 && strings.TrimSpace(l.DN2) == "" {
			issues = append(issues, "ldap.dn2 is required unless dn1_percentage is 100")
		}
		if len(l.Attributes) == 0 {
			issues = append(issues, "ldap.attributes must name at least one attribute")
		}
		if l.ValueLength < 1 {
			issues = append(issues, "ldap.value_length must be >= 1")
		}
		if l.CharacterSet == "" {
			issues = append(issues, "ldap.character_set must not be empty")
		}
	case JobLDAPModDN:
		if strings.TrimSpace(l.ParentDN) == "" {
			issues = append(issues, "ldap.parent_dn is required for ldapmoddn")
		}
		if strings.TrimSpace(l.RDNAttribute) == "" {
			issues = append(issues, "ldap.rdn_attribute is required for ldapmoddn")
		}
		if l.RangeStart < 0 || l.RangeEnd < l.RangeStart {
			issues = append(issues, fmt.Sprintf("ldap range [%d, %d] is invalid", l.RangeStart, l.RangeEnd))
		}
		if l.TimeBetweenRequests < 0 {
			issues = append(issues, "ldap.time_between_requests must be >= 0")
		}
	}
	return issues
}

func validateRateConfig(r RateConfig) []string {
	var issues []string
	if r.OpsPerInterval < 0 {
		issues = append(issues, "rate.ops_per_interval must be >= 0")
	}
	if r.Interval < 0 {
		issues = append(issues, "rate.interval must be >= 0")
	}
	switch gate.Model(strings.ToLower(r.ArrivalModel)) {
	case "", gate.ModelUniform, gate.ModelPoisson:
	default:
		issues = append(issues, fmt.Sprintf("rate.arrival_model must be 'uniform' or 'poisson', got %q", r.ArrivalModel))
	}
	for _, issue := range gate.Validate(r.GateOptions(time.Second).Patterns) {
		issues = append(issues, "rate."+issue)
	}
	return issues
}

func validateReportingConfig(r ReportingConfig) []string {
	var issues []string
	switch strings.ToLower(r.Sink) {
	case "", "log", "console":
	case "websocket":
		if strings.TrimSpace(r.URL) == "" {
			issues = append(issues, "reporting.url is required for the websocket sink")
		}
	case "prometheus":
		if strings.TrimSpace(r.Listen) == "" {
			issues = append(issues, "reporting.listen is required for the prometheus sink")
		}
	default:
		issues = append(issues, fmt.Sprintf("reporting.sink must be one of log, console, websocket, prometheus; got %q", r.Sink))
	}
	if r.Interval < 0 {
		issues = append(issues, "reporting.interval must be >= 0")
	}
	if r.MaxPending < 0 {
		issues = append(issues, "reporting.max_pending must be >= 0")
	}
	return issues
}

func validateOutputConfig(o OutputConfig) []string {
	switch strings.ToLower(o.Format) {
	case "", "text", "json", "yaml", "yml":
		return nil
	default:
		return []string{fmt.Sprintf("output.format must be text, json or yaml; got %q", o.Format)}
	}
}
