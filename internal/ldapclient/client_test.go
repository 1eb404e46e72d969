package ldapclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	release  chan struct{}
	modErr   error
	dnErr    error
	bindErr  error
	modifies []string
	renames  []string
}

func (f *fakeConn) Bind(string, string) error { return f.bindErr }

func (f *fakeConn) Modify(req *ldap.ModifyRequest) error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.modifies = append(f.modifies, req.DN)
	f.mu.Unlock()
	return f.modErr
}

func (f *fakeConn) ModifyDN(req *ldap.ModifyDNRequest) error {
	f.mu.Lock()
	f.renames = append(f.renames, req.DN+"->"+req.NewRDN)
	f.mu.Unlock()
	return f.dnErr
}

func TestResultCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "Success"},
		{"ldap error", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("missing")), "No Such Object"},
		{"wrapped", errors.Join(errors.New("ctx"), ldap.NewError(ldap.LDAPResultBusy, errors.New("busy"))), "Busy"},
		{"unknown code", ldap.NewError(4999, errors.New("odd")), "Result Code 4999"},
		{"canceled", context.Canceled, "Canceled"},
		{"closed", ErrClosed, "Network Error"},
		{"other", errors.New("boom"), "Other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResultCode(tt.err))
		})
	}
	assert.True(t, IsSuccess(ResultCode(nil)))
	assert.False(t, IsSuccess("Busy"))
}

func TestModifyRecordsResult(t *testing.T) {
	conn := &fakeConn{modErr: ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("denied"))}
	c := New(conn, nil)

	res := c.Modify(context.Background(), ldap.NewModifyRequest("uid=a,dc=example", nil))
	require.Error(t, res.Err)
	assert.Equal(t, "Insufficient Access Rights", res.Code)
	assert.Equal(t, []string{"uid=a,dc=example"}, conn.modifies)

	snap := c.Metrics()
	assert.EqualValues(t, 1, snap.Submitted)
	assert.EqualValues(t, 1, snap.Errors)
	assert.Zero(t, snap.Active)
}

func TestModifyDN(t *testing.T) {
	conn := &fakeConn{}
	c := New(conn, nil)
	res := c.ModifyDN(context.Background(), ldap.NewModifyDNRequest("uid=1,ou=p", "uid=1-job", true, ""))
	require.NoError(t, res.Err)
	assert.Equal(t, "Success", res.Code)
	assert.Equal(t, []string{"uid=1,ou=p->uid=1-job"}, conn.renames)
}

func TestModifyAsyncTracksOutstanding(t *testing.T) {
	conn := &fakeConn{release: make(chan struct{})}
	c := New(conn, nil)

	results := make(chan Result, 3)
	for i := 0; i < 3; i++ {
		require.NoError(t, c.ModifyAsync(context.Background(), ldap.NewModifyRequest("uid=x", nil), func(r Result) { results <- r }))
	}
	assert.Equal(t, 3, c.ActiveOperations())

	close(conn.release)
	for i := 0; i < 3; i++ {
		select {
		case r := <-results:
			assert.Equal(t, "Success", r.Code)
		case <-time.After(time.Second):
			t.Fatal("completion not delivered")
		}
	}
	assert.Zero(t, c.ActiveOperations())
}

func TestCompletionSeesOperationRetired(t *testing.T) {
	conn := &fakeConn{modErr: ldap.NewError(ldap.LDAPResultBusy, errors.New("busy"))}
	c := New(conn, nil)

	active := make(chan int, 1)
	require.NoError(t, c.ModifyAsync(context.Background(), ldap.NewModifyRequest("uid=x", nil), func(r Result) {
		assert.Equal(t, "Busy", r.Code)
		active <- c.ActiveOperations()
	}))
	select {
	case n := <-active:
		assert.Zero(t, n, "done must run after the operation is retired")
	case <-time.After(time.Second):
		t.Fatal("completion not delivered")
	}
	snap := c.Metrics()
	assert.EqualValues(t, 1, snap.Submitted)
	assert.EqualValues(t, 1, snap.Errors)
}

func TestClosedClientRejects(t *testing.T) {
	closed := 0
	c := New(&fakeConn{}, func() { closed++ })
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, closed)

	assert.ErrorIs(t, c.ModifyAsync(context.Background(), ldap.NewModifyRequest("uid=x", nil), func(Result) {}), ErrClosed)
	res := c.Modify(context.Background(), ldap.NewModifyRequest("uid=x", nil))
	assert.ErrorIs(t, res.Err, ErrClosed)
	assert.EqualValues(t, 2, c.Metrics().Rejected)
}

func TestCancelledContextRejects(t *testing.T) {
	c := New(&fakeConn{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := c.Modify(ctx, ldap.NewModifyRequest("uid=x", nil))
	assert.Equal(t, "Canceled", res.Code)
	assert.ErrorIs(t, c.ModifyAsync(ctx, ldap.NewModifyRequest("uid=x", nil), func(Result) {}), context.Canceled)
}

func TestBindWrapsError(t *testing.T) {
	c := New(&fakeConn{bindErr: ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad"))}, nil)
	err := c.Bind("cn=admin", "nope")
	require.Error(t, err)
	assert.Equal(t, "Invalid Credentials", ResultCode(err))
}
