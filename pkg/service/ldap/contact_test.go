package ldap_test

import (
	"context"
	"errors"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/service/ldap"
)

type fakeConn struct {
	bound    []string
	requests []*goldap.SearchRequest
	entries  []*goldap.Entry
	err      error
	closed   bool
}

func (f *fakeConn) Bind(username, _ string) error {
	f.bound = append(f.bound, username)
	return nil
}

func (f *fakeConn) Search(req *goldap.SearchRequest) (*goldap.SearchResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &goldap.SearchResult{Entries: f.entries}, nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func newProvider(t *testing.T, conn *fakeConn) *ldap.Client {
	t.Helper()
	c, err := ldap.New(ldap.Config{
		URL:             "ldap://directory.example.com",
		BindDN:          "cn=dispatch,dc=example,dc=com",
		BaseDN:          "ou=people,dc=example,dc=com",
		WeblinkTemplate: "https://people.example.com/%s",
	}, ldap.WithDialer(func(ctx context.Context, conf ldap.Config) (ldap.Conn, error) {
		return conn, nil
	}))
	gt.NoError(t, err).Required()
	return c
}

func TestLookup(t *testing.T) {
	conn := &fakeConn{entries: []*goldap.Entry{
		goldap.NewEntry("uid=alice,ou=people,dc=example,dc=com", map[string][]string{
			"mail":  {"alice@example.com"},
			"cn":    {"Alice Liddell"},
			"title": {"Security Engineer"},
			"ou":    {"Detection"},
			"l":     {"Los Gatos"},
		}),
	}}
	c := newProvider(t, conn)

	info, err := c.Lookup(context.Background(), "Alice@example.com")
	gt.NoError(t, err).Required()
	gt.Value(t, info.Name).Equal("Alice Liddell")
	gt.Value(t, info.Title).Equal("Security Engineer")
	gt.Value(t, info.Team).Equal("Detection")
	gt.Value(t, info.Location).Equal("Los Gatos")
	gt.Value(t, info.Weblink).Equal("https://people.example.com/alice@example.com")

	gt.Array(t, conn.bound).Length(1)
	gt.Array(t, conn.requests).Length(1).Required()
	gt.Value(t, conn.requests[0].Filter).Equal("(mail=Alice@example.com)")
	gt.Bool(t, conn.closed).True()
}

func TestLookupEscapesFilter(t *testing.T) {
	conn := &fakeConn{}
	c := newProvider(t, conn)

	_, err := c.Lookup(context.Background(), "x*)(uid=*")
	gt.Bool(t, errors.Is(err, model.ErrNotFound)).True()
	gt.Value(t, conn.requests[0].Filter).Equal(`(mail=x\2a\29\28uid=\2a)`)
}

func TestLookupErrors(t *testing.T) {
	conn := &fakeConn{err: goldap.NewError(goldap.LDAPResultBusy, errors.New("busy"))}
	c := newProvider(t, conn)

	_, err := c.Lookup(context.Background(), "alice@example.com")
	gt.Bool(t, model.IsTransient(err)).True()

	_, err = ldap.New(ldap.Config{URL: "ldap://x"})
	gt.Value(t, err).NotNil()
}
