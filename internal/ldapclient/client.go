// Package ldapclient wraps a go-ldap connection with operation accounting and
// asynchronous submission for load generation.
package ldapclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/torosent/loadcore/internal/clientmetrics"
)

// ErrClosed is returned for operations submitted after Close.
var ErrClosed = errors.New("ldapclient: connection closed")

// Conn is the part of *ldap.Conn the client drives. go-ldap multiplexes
// operations by message ID, so implementations must be safe for concurrent use.
type Conn interface {
	Bind(username, password string) error
	Modify(req *ldap.ModifyRequest) error
	ModifyDN(req *ldap.ModifyDNRequest) error
}

type Config struct {
	URL                string
	BindDN             string
	BindPassword       string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Result describes one completed operation.
type Result struct {
	Code    string
	Elapsed time.Duration
	Err     error
}

// Client is one LDAP connection.
type Client struct {
	conn    Conn
	closeFn func()
	metrics *clientmetrics.ClientMetrics
	now     func() time.Time

	closed atomic.Bool
}

// Dial connects to cfg.URL and binds when a bind DN is configured.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []ldap.DialOpt{ldap.DialWithDialer(&net.Dialer{Timeout: timeout})}
	if cfg.InsecureSkipVerify {
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: true})) //nolint:gosec // opt-in for lab directories
	}
	conn, err := ldap.DialURL(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	conn.SetTimeout(timeout)

	c := New(conn, func() { conn.Close() })
	if cfg.BindDN != "" {
		if err := c.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

// New wraps an established connection. closeFn is called once by Close.
func New(conn Conn, closeFn func()) *Client {
	m := clientmetrics.New()
	m.MarkConnected()
	return &Client{conn: conn, closeFn: closeFn, metrics: m, now: time.Now}
}

func (c *Client) Bind(dn, password string) error {
	if err := c.conn.Bind(dn, password); err != nil {
		return fmt.Errorf("bind as %q: %w", dn, err)
	}
	return nil
}

// Modify runs a modify request and waits for its result.
func (c *Client) Modify(ctx context.Context, req *ldap.ModifyRequest) Result {
	return c.run(ctx, func() error { return c.conn.Modify(req) })
}

// ModifyDN runs a modify DN request and waits for its result.
func (c *Client) ModifyDN(ctx context.Context, req *ldap.ModifyDNRequest) Result {
	return c.run(ctx, func() error { return c.conn.ModifyDN(req) })
}

// ModifyAsync submits req and returns immediately. done is called from
// another goroutine once the server responds, after the operation has left
// ActiveOperations. A submission error is returned directly and done is not
// called. Callers bound and drain their own outstanding work.
func (c *Client) ModifyAsync(ctx context.Context, req *ldap.ModifyRequest, done func(Result)) error {
	if c.closed.Load() {
		c.metrics.Reject()
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		c.metrics.Reject()
		return err
	}

	c.metrics.Begin()
	start := c.now()
	go func() {
		err := c.conn.Modify(req)
		c.metrics.End(err != nil)
		done(Result{Code: ResultCode(err), Elapsed: c.now().Sub(start), Err: err})
	}()
	return nil
}

func (c *Client) run(ctx context.Context, op func() error) Result {
	if c.closed.Load() {
		c.metrics.Reject()
		return Result{Code: ResultCode(ErrClosed), Err: ErrClosed}
	}
	if err := ctx.Err(); err != nil {
		c.metrics.Reject()
		return Result{Code: ResultCode(err), Err: err}
	}

	c.metrics.Begin()
	start := c.now()
	err := op()
	c.metrics.End(err != nil)
	return Result{Code: ResultCode(err), Elapsed: c.now().Sub(start), Err: err}
}

// ActiveOperations returns the number of operations awaiting a response.
func (c *Client) ActiveOperations() int { return c.metrics.ActiveOperations() }

func (c *Client) Metrics() clientmetrics.Snapshot { return c.metrics.Snapshot() }

// Close refuses new operations and closes the connection. Operations still in
// flight fail with a network error.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.closeFn != nil {
		c.closeFn()
	}
	c.metrics.Reset()
	return nil
}

// ResultCode returns the LDAP result name for err, "Success" for nil.
func ResultCode(err error) string {
	if err == nil {
		return ldap.LDAPResultCodeMap[ldap.LDAPResultSuccess]
	}
	var lerr *ldap.Error
	if errors.As(err, &lerr) {
		if name, ok := ldap.LDAPResultCodeMap[lerr.ResultCode]; ok {
			return name
		}
		return fmt.Sprintf("Result Code %d", lerr.ResultCode)
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ldap.LDAPResultCodeMap[ldap.LDAPResultCanceled]
	case errors.Is(err, ErrClosed):
		return ldap.LDAPResultCodeMap[ldap.ErrorNetwork]
	default:
		return ldap.LDAPResultCodeMap[ldap.LDAPResultOther]
	}
}

// IsSuccess reports whether code names a successful result.
func IsSuccess(code string) bool {
	return code == ldap.LDAPResultCodeMap[ldap.LDAPResultSuccess]
}
