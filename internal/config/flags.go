package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "loadcore",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Job flags
	flags.StringP("job", "j", "", "Job to run: httprate, ldapmodrate or ldapmoddn")
	flags.String("job-id", "", "Job identifier (default: generated ULID)")
	flags.String("client-id", "", "Client identifier (default: generated UUID)")
	flags.IntP("threads", "c", 1, "Number of worker threads")
	flags.DurationP("duration", "d", 0, "How long to run the job (0 runs until interrupted)")
	flags.Duration("warm-up", 0, "Leading period excluded from statistics")
	flags.Duration("cool-down", 0, "Trailing period excluded from statistics")
	flags.Duration("collection-interval", 5*time.Second, "Statistics collection interval")
	flags.Int("max-outstanding", 0, "Maximum outstanding asynchronous operations per thread (0 means unlimited)")
	flags.Duration("drain-timeout", 30*time.Second, "Max time to wait for outstanding operations at thread exit")
	flags.Duration("response-time-threshold", 0, "Count operations slower than this (0 disables)")

	// Rate flags
	flags.IntP("rate", "r", 0, "Operations allowed per rate interval across all threads (0 means unlimited)")
	flags.Duration("rate-interval", 0, "Interval the rate applies to (default: collection interval)")
	flags.String("arrival-model", "uniform", "Arrival model to use when pacing operations (uniform or poisson)")

	// HTTP flags
	flags.String("target", "", "Target URL for the httprate job")
	flags.String("method", http.MethodGet, "HTTP method to use")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.String("body", "", "Inline request body payload")
	flags.String("body-file", "", "Path to file containing the request body")
	flags.Duration("timeout", 30*time.Second, "Per-request timeout")
	flags.String("label-path", "", "gjson path in the response body used as the result label")

	// LDAP flags
	flags.String("ldap-url", "", "LDAP server URL (ldap:// or ldaps://)")
	flags.String("bind-dn", "", "DN to bind as")
	flags.String("bind-password", "", "Password for the bind DN")
	flags.Int("connections", 1, "LDAP connections per thread")
	flags.String("selection-policy", "fewest_outstanding", "Connection selection policy (round_robin or fewest_outstanding)")
	flags.String("dn1", "", "First entry DN pattern for ldapmodrate")
	flags.String("dn2", "", "Second entry DN pattern for ldapmodrate")
	flags.Int("dn1-percentage", 50, "Percentage of modifications targeting dn1")
	flags.StringSlice("attribute", nil, "Attribute to modify (repeatable)")
	flags.Int("value-length", 80, "Length of generated attribute values")
	flags.String("parent-dn", "", "Parent DN of the entries renamed by ldapmoddn")
	flags.String("rdn-attribute", "uid", "RDN attribute of renamed entries")
	flags.String("rdn-prefix", "", "RDN value prefix")
	flags.String("rdn-suffix", "", "RDN value suffix")
	flags.Int("range-start", 0, "First entry number renamed by ldapmoddn")
	flags.Int("range-end", 0, "Last entry number renamed by ldapmoddn")
	flags.Duration("time-between-requests", 0, "Pause after each ldapmoddn rename")

	// Reporting flags
	flags.String("report-sink", "", "Real-time statistics sink: log, console, websocket or prometheus")
	flags.String("report-url", "", "WebSocket URL for the websocket sink")
	flags.String("report-listen", "", "Listen address for the prometheus sink (e.g. :9090)")
	flags.Duration("report-interval", 5*time.Second, "How often real-time statistics are sent")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint")
	flags.String("tracing-protocol", "grpc", "OTLP protocol (grpc or http)")
	flags.Float64("tracing-sample-rate", 1.0, "Trace sampling ratio between 0 and 1")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")

	// Output flags
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "console", "Log format (console or json)")
	flags.StringP("output", "o", "text", "Report format: text, json or yaml")
	flags.StringSlice("threshold", nil, "Pass/fail thresholds (repeatable, e.g. 'modification_duration:p95 < 50')")
}

func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

type flagBinding struct {
	name  string
	apply func(fs *pflag.FlagSet, name string) error
}

func stringFlag(dst *string) func(*pflag.FlagSet, string) error {
	return func(fs *pflag.FlagSet, name string) error {
		val, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(val)
		return nil
	}
}

func intFlag(dst *int) func(*pflag.FlagSet, string) error {
	return func(fs *pflag.FlagSet, name string) error {
		val, err := fs.GetInt(name)
		if err != nil {
			return err
		}
		*dst = val
		return nil
	}
}

func durationFlag(dst *time.Duration) func(*pflag.FlagSet, string) error {
	return func(fs *pflag.FlagSet, name string) error {
		val, err := fs.GetDuration(name)
		if err != nil {
			return err
		}
		*dst = val
		return nil
	}
}

// applyFlagOverrides applies explicitly set command-line flags on top of the
// values loaded from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	job := string(cfg.Job)
	bindings := []flagBinding{
		{"job", stringFlag(&job)},
		{"job-id", stringFlag(&cfg.JobID)},
		{"client-id", stringFlag(&cfg.ClientID)},
		{"threads", intFlag(&cfg.Threads)},
		{"duration", durationFlag(&cfg.Duration)},
		{"warm-up", durationFlag(&cfg.WarmUp)},
		{"cool-down", durationFlag(&cfg.CoolDown)},
		{"collection-interval", durationFlag(&cfg.CollectionInterval)},
		{"max-outstanding", intFlag(&cfg.MaxOutstanding)},
		{"drain-timeout", durationFlag(&cfg.DrainTimeout)},
		{"response-time-threshold", durationFlag(&cfg.ResponseTimeThreshold)},

		{"rate", intFlag(&cfg.Rate.OpsPerInterval)},
		{"rate-interval", durationFlag(&cfg.Rate.Interval)},
		{"arrival-model", stringFlag(&cfg.Rate.ArrivalModel)},

		{"target", stringFlag(&cfg.HTTP.URL)},
		{"method", stringFlag(&cfg.HTTP.Method)},
		{"body", func(fs *pflag.FlagSet, name string) error {
			val, err := fs.GetString(name)
			cfg.HTTP.Body = val
			cfg.HTTP.BodyFile = ""
			return err
		}},
		{"body-file", func(fs *pflag.FlagSet, name string) error {
			val, err := fs.GetString(name)
			cfg.HTTP.BodyFile = strings.TrimSpace(val)
			cfg.HTTP.Body = ""
			return err
		}},
		{"timeout", durationFlag(&cfg.HTTP.Timeout)},
		{"label-path", stringFlag(&cfg.HTTP.LabelPath)},

		{"ldap-url", stringFlag(&cfg.LDAP.URL)},
		{"bind-dn", stringFlag(&cfg.LDAP.BindDN)},
		{"bind-password", stringFlag(&cfg.LDAP.BindPassword)},
		{"connections", intFlag(&cfg.LDAP.ConnectionsPerThread)},
		{"selection-policy", stringFlag(&cfg.LDAP.SelectionPolicy)},
		{"dn1", stringFlag(&cfg.LDAP.DN1)},
		{"dn2", stringFlag(&cfg.LDAP.DN2)},
		{"dn1-percentage", intFlag(&cfg.LDAP.DN1Percentage)},
		{"attribute", func(fs *pflag.FlagSet, name string) error {
			vals, err := fs.GetStringSlice(name)
			if err != nil {
				return err
			}
			cfg.LDAP.Attributes = vals
			return nil
		}},
		{"value-length", intFlag(&cfg.LDAP.ValueLength)},
		{"parent-dn", stringFlag(&cfg.LDAP.ParentDN)},
		{"rdn-attribute", stringFlag(&cfg.LDAP.RDNAttribute)},
		{"rdn-prefix", stringFlag(&cfg.LDAP.RDNPrefix)},
		{"rdn-suffix", stringFlag(&cfg.LDAP.RDNSuffix)},
		{"range-start", intFlag(&cfg.LDAP.RangeStart)},
		{"range-end", intFlag(&cfg.LDAP.RangeEnd)},
		{"time-between-requests", durationFlag(&cfg.LDAP.TimeBetweenRequests)},

		{"report-sink", stringFlag(&cfg.Reporting.Sink)},
		{"report-url", stringFlag(&cfg.Reporting.URL)},
		{"report-listen", stringFlag(&cfg.Reporting.Listen)},
		{"report-interval", durationFlag(&cfg.Reporting.Interval)},

		{"tracing-endpoint", stringFlag(&cfg.Tracing.Endpoint)},
		{"tracing-protocol", stringFlag(&cfg.Tracing.Protocol)},
		{"tracing-sample-rate", func(fs *pflag.FlagSet, name string) error {
			val, err := fs.GetFloat64(name)
			cfg.Tracing.SampleRate = val
			return err
		}},
		{"tracing-insecure", func(fs *pflag.FlagSet, name string) error {
			val, err := fs.GetBool(name)
			cfg.Tracing.Insecure = val
			return err
		}},

		{"log-level", stringFlag(&cfg.Log.Level)},
		{"log-format", stringFlag(&cfg.Log.Format)},
		{"output", stringFlag(&cfg.Output.Format)},
		{"threshold", func(fs *pflag.FlagSet, name string) error {
			vals, err := fs.GetStringSlice(name)
			if err != nil {
				return err
			}
			cfg.Thresholds = append(cfg.Thresholds, vals...)
			return nil
		}},
	}

	for _, b := range bindings {
		if !fs.Changed(b.name) {
			continue
		}
		if err := b.apply(fs, b.name); err != nil {
			return fmt.Errorf("--%s: %w", b.name, err)
		}
	}
	cfg.Job = JobKind(job)

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.HTTP.Headers == nil {
			cfg.HTTP.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.HTTP.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	return nil
}
