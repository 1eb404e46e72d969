package main

import (
	"fmt"

	"github.com/torosent/loadcore/internal/config"
	"github.com/torosent/loadcore/internal/jobs/httprate"
	"github.com/torosent/loadcore/internal/jobs/ldapmoddn"
	"github.com/torosent/loadcore/internal/jobs/ldapmodrate"
	"github.com/torosent/loadcore/internal/ldapclient"
	"github.com/torosent/loadcore/internal/pool"
	"github.com/torosent/loadcore/internal/runner"
)

// newJobFromConfig builds the job named by cfg.Job.
func newJobFromConfig(cfg *config.Config, propagate bool) (runner.Job, error) {
	switch cfg.Job {
	case config.JobHTTPRate:
		return httprate.New(httprate.Config{
			HTTP:                  cfg.HTTP,
			ResponseTimeThreshold: cfg.ResponseTimeThreshold,
			Propagate:             propagate,
		})
	case config.JobLDAPModRate:
		policy, err := pool.ParsePolicy(cfg.LDAP.SelectionPolicy)
		if err != nil {
			return nil, err
		}
		return ldapmodrate.New(ldapmodrate.Config{
			LDAP:                  ldapConnConfig(cfg.LDAP),
			ConnectionsPerThread:  cfg.LDAP.ConnectionsPerThread,
			Policy:                policy,
			MaxOutstanding:        cfg.MaxOutstanding,
			DN1:                   cfg.LDAP.DN1,
			DN2:                   cfg.LDAP.DN2,
			DN1Percentage:         cfg.LDAP.DN1Percentage,
			Attributes:            cfg.LDAP.Attributes,
			ValueLength:           cfg.LDAP.ValueLength,
			CharacterSet:          cfg.LDAP.CharacterSet,
			ResponseTimeThreshold: cfg.ResponseTimeThreshold,
		})
	case config.JobLDAPModDN:
		return ldapmoddn.New(ldapmoddn.Config{
			LDAP:                  ldapConnConfig(cfg.LDAP),
			ParentDN:              cfg.LDAP.ParentDN,
			RDNAttribute:          cfg.LDAP.RDNAttribute,
			RDNPrefix:             cfg.LDAP.RDNPrefix,
			RDNSuffix:             cfg.LDAP.RDNSuffix,
			RangeStart:            int64(cfg.LDAP.RangeStart),
			RangeEnd:              int64(cfg.LDAP.RangeEnd),
			TimeBetweenRequests:   cfg.LDAP.TimeBetweenRequests,
			ResponseTimeThreshold: cfg.ResponseTimeThreshold,
		})
	default:
		return nil, fmt.Errorf("unsupported job: %q", cfg.Job)
	}
}

func ldapConnConfig(cfg config.LDAPConfig) ldapclient.Config {
	return ldapclient.Config{
		URL:                cfg.URL,
		BindDN:             cfg.BindDN,
		BindPassword:       cfg.BindPassword,
		Timeout:            cfg.Timeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
}
