package config

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/torosent/loadcore/internal/pool"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns the configuration used before any file or flag applies.
func Defaults() *Config {
	return &Config{
		Threads:            1,
		CollectionInterval: 5 * time.Second,
		DrainTimeout:       30 * time.Second,
		Rate:               RateConfig{ArrivalModel: "uniform"},
		HTTP: HTTPConfig{
			Method:  http.MethodGet,
			Headers: map[string]string{},
			Timeout: 30 * time.Second,
		},
		LDAP: LDAPConfig{
			Timeout:              30 * time.Second,
			ConnectionsPerThread: 1,
			SelectionPolicy:      string(pool.FewestOutstanding),
			DN1Percentage:        50,
			Attributes:           []string{"description"},
			ValueLength:          80,
			CharacterSet:         "abcdefghijklmnopqrstuvwxyz",
			RDNAttribute:         "uid",
		},
		Tracing: TracingConfig{SampleRate: 1.0, Protocol: "grpc"},
		Log:     LogConfig{Level: "info", Format: "console"},
		Output:  OutputConfig{Format: "text"},
	}
}

// Load parses command-line arguments and an optional configuration file.
// Flags override file settings, which override Defaults.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	finalize(cfg)
	return cfg, nil
}

// finalize normalizes values and fills generated identifiers.
func finalize(cfg *Config) {
	cfg.Job = JobKind(strings.ToLower(strings.TrimSpace(string(cfg.Job))))
	cfg.HTTP.Method = strings.ToUpper(strings.TrimSpace(cfg.HTTP.Method))
	cfg.HTTP.URL = strings.TrimSpace(cfg.HTTP.URL)
	cfg.LDAP.URL = strings.TrimSpace(cfg.LDAP.URL)
	if cfg.HTTP.Headers == nil {
		cfg.HTTP.Headers = map[string]string{}
	}
	if cfg.JobID == "" {
		cfg.JobID = ulid.Make().String()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	job := string(cfg.Job)
	err := applySettings(settings, []setting{
		{[]string{"job"}, stringInto(&job)},
		{[]string{"job_id"}, stringInto(&cfg.JobID)},
		{[]string{"client_id"}, stringInto(&cfg.ClientID)},
		{[]string{"threads", "concurrency"}, intInto(&cfg.Threads)},
		{[]string{"duration"}, durationInto(&cfg.Duration)},
		{[]string{"warm_up"}, durationInto(&cfg.WarmUp)},
		{[]string{"cool_down"}, durationInto(&cfg.CoolDown)},
		{[]string{"collection_interval"}, durationInto(&cfg.CollectionInterval)},
		{[]string{"max_outstanding"}, intInto(&cfg.MaxOutstanding)},
		{[]string{"drain_timeout"}, durationInto(&cfg.DrainTimeout)},
		{[]string{"response_time_threshold", "threshold_ms"}, millisInto(&cfg.ResponseTimeThreshold)},
		{[]string{"rate"}, sectionInto(func(m map[string]interface{}) error { return applyRateSettings(&cfg.Rate, m) })},
		{[]string{"http"}, sectionInto(func(m map[string]interface{}) error { return applyHTTPSettings(&cfg.HTTP, m) })},
		{[]string{"ldap"}, sectionInto(func(m map[string]interface{}) error { return applyLDAPSettings(&cfg.LDAP, m) })},
		{[]string{"reporting"}, sectionInto(func(m map[string]interface{}) error { return applyReportingSettings(&cfg.Reporting, m) })},
		{[]string{"tracing"}, sectionInto(func(m map[string]interface{}) error { return applyTracingSettings(&cfg.Tracing, m) })},
		{[]string{"log"}, sectionInto(func(m map[string]interface{}) error {
			return applySettings(m, []setting{
				{[]string{"level"}, stringInto(&cfg.Log.Level)},
				{[]string{"format"}, stringInto(&cfg.Log.Format)},
			})
		})},
		{[]string{"output"}, sectionInto(func(m map[string]interface{}) error {
			return applySettings(m, []setting{{[]string{"format"}, stringInto(&cfg.Output.Format)}})
		})},
		{[]string{"thresholds"}, listInto(&cfg.Thresholds)},
	})
	if err != nil {
		return err
	}
	cfg.Job = JobKind(job)
	return nil
}

func applyRateSettings(r *RateConfig, settings map[string]interface{}) error {
	return applySettings(settings, []setting{
		{[]string{"ops_per_interval", "max_rate"}, intInto(&r.OpsPerInterval)},
		{[]string{"interval"}, durationInto(&r.Interval)},
		{[]string{"arrival_model"}, stringInto(&r.ArrivalModel)},
		{[]string{"patterns", "load_patterns"}, func(raw interface{}) error {
			patterns, err := parseLoadPatterns(raw)
			if err != nil {
				return err
			}
			r.Patterns = patterns
			return nil
		}},
	})
}

func applyHTTPSettings(h *HTTPConfig, settings map[string]interface{}) error {
	return applySettings(settings, []setting{
		{[]string{"url", "target"}, stringInto(&h.URL)},
		{[]string{"method"}, stringInto(&h.Method)},
		{[]string{"body"}, rawStringInto(&h.Body)},
		{[]string{"body_file"}, stringInto(&h.BodyFile)},
		{[]string{"timeout"}, durationInto(&h.Timeout)},
		{[]string{"label_path"}, stringInto(&h.LabelPath)},
		{[]string{"headers"}, func(raw interface{}) error {
			hdrs, err := cast.ToStringMapStringE(raw)
			if err != nil {
				return err
			}
			if h.Headers == nil {
				h.Headers = map[string]string{}
			}
			for k, v := range hdrs {
				h.Headers[http.CanonicalHeaderKey(k)] = v
			}
			return nil
		}},
	})
}

func applyLDAPSettings(l *LDAPConfig, settings map[string]interface{}) error {
	return applySettings(settings, []setting{
		{[]string{"url"}, stringInto(&l.URL)},
		{[]string{"bind_dn"}, stringInto(&l.BindDN)},
		{[]string{"bind_password"}, stringInto(&l.BindPassword)},
		{[]string{"timeout"}, durationInto(&l.Timeout)},
		{[]string{"insecure_skip_verify"}, boolInto(&l.InsecureSkipVerify)},
		{[]string{"connections_per_thread", "conns_per_client"}, intInto(&l.ConnectionsPerThread)},
		{[]string{"selection_policy", "selection_mode"}, stringInto(&l.SelectionPolicy)},
		{[]string{"dn1"}, stringInto(&l.DN1)},
		{[]string{"dn2"}, stringInto(&l.DN2)},
		{[]string{"dn1_percentage", "percentage"}, intInto(&l.DN1Percentage)},
		{[]string{"attributes", "mod_attributes"}, listInto(&l.Attributes)},
		{[]string{"value_length", "length"}, intInto(&l.ValueLength)},
		{[]string{"character_set", "charset"}, rawStringInto(&l.CharacterSet)},
		{[]string{"parent_dn"}, stringInto(&l.ParentDN)},
		{[]string{"rdn_attribute", "rdn_attr"}, stringInto(&l.RDNAttribute)},
		{[]string{"rdn_prefix"}, stringInto(&l.RDNPrefix)},
		{[]string{"rdn_suffix"}, stringInto(&l.RDNSuffix)},
		{[]string{"range_start", "lower_bound"}, intInto(&l.RangeStart)},
		{[]string{"range_end", "upper_bound"}, intInto(&l.RangeEnd)},
		{[]string{"time_between_requests"}, millisInto(&l.TimeBetweenRequests)},
	})
}

func applyReportingSettings(r *ReportingConfig, settings map[string]interface{}) error {
	return applySettings(settings, []setting{
		{[]string{"sink"}, stringInto(&r.Sink)},
		{[]string{"url"}, stringInto(&r.URL)},
		{[]string{"interval"}, durationInto(&r.Interval)},
		{[]string{"listen", "addr"}, stringInto(&r.Listen)},
		{[]string{"max_pending"}, intInto(&r.MaxPending)},
	})
}

func applyTracingSettings(t *TracingConfig, settings map[string]interface{}) error {
	return applySettings(settings, []setting{
		{[]string{"endpoint"}, stringInto(&t.Endpoint)},
		{[]string{"protocol"}, stringInto(&t.Protocol)},
		{[]string{"service_name"}, stringInto(&t.ServiceName)},
		{[]string{"sample_rate"}, floatInto(&t.SampleRate)},
		{[]string{"insecure"}, boolInto(&t.Insecure)},
		{[]string{"propagate"}, func(raw interface{}) error {
			val, err := cast.ToBoolE(raw)
			if err != nil {
				return err
			}
			t.Propagate = &val
			return nil
		}},
	})
}

func parseLoadPatterns(value interface{}) ([]LoadPattern, error) {
	var patterns []LoadPattern
	err := eachEntry(value, func(entry map[string]interface{}) error {
		var pattern LoadPattern
		var kind string
		err := applySettings(entry, []setting{
			{[]string{"name"}, stringInto(&pattern.Name)},
			{[]string{"type"}, stringInto(&kind)},
			{[]string{"from_rate", "from_rps", "from"}, floatInto(&pattern.FromRate)},
			{[]string{"to_rate", "to_rps", "to"}, floatInto(&pattern.ToRate)},
			{[]string{"rate", "rps"}, floatInto(&pattern.Rate)},
			{[]string{"duration"}, durationInto(&pattern.Duration)},
			{[]string{"steps"}, func(raw interface{}) error {
				steps, err := parseLoadSteps(raw)
				pattern.Steps = steps
				return err
			}},
		})
		if err != nil {
			return err
		}
		pattern.Type = LoadPatternType(strings.ToLower(kind))
		patterns = append(patterns, pattern)
		return nil
	})
	return patterns, err
}

func parseLoadSteps(value interface{}) ([]LoadStep, error) {
	var steps []LoadStep
	err := eachEntry(value, func(entry map[string]interface{}) error {
		var step LoadStep
		if err := applySettings(entry, []setting{
			{[]string{"rate", "rps"}, floatInto(&step.Rate)},
			{[]string{"duration"}, durationInto(&step.Duration)},
		}); err != nil {
			return err
		}
		steps = append(steps, step)
		return nil
	})
	return steps, err
}
