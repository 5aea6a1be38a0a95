package ldap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// PluginSlug is the plugin name of the LDAP contact provider
const PluginSlug = "ldap-contact"

// Config is the plugin configuration of the LDAP contact provider
type Config struct {
	URL          string `json:"url"`
	BindDN       string `json:"bind_dn,omitempty"`
	BindPassword string `json:"bind_password,omitempty" masq:"secret"`
	BaseDN       string `json:"base_dn"`
	// InsecureSkipVerify disables certificate checks for ldaps URLs
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty"`

	// Attribute names; defaults follow inetOrgPerson
	EmailAttribute    string `json:"email_attribute,omitempty"`
	NameAttribute     string `json:"name_attribute,omitempty"`
	TitleAttribute    string `json:"title_attribute,omitempty"`
	TeamAttribute     string `json:"team_attribute,omitempty"`
	LocationAttribute string `json:"location_attribute,omitempty"`

	// WeblinkTemplate renders a profile link; %s is replaced with the email
	WeblinkTemplate string `json:"weblink_template,omitempty"`
}

func (c *Config) setDefaults() {
	if c.EmailAttribute == "" {
		c.EmailAttribute = "mail"
	}
	if c.NameAttribute == "" {
		c.NameAttribute = "cn"
	}
	if c.TitleAttribute == "" {
		c.TitleAttribute = "title"
	}
	if c.TeamAttribute == "" {
		c.TeamAttribute = "ou"
	}
	if c.LocationAttribute == "" {
		c.LocationAttribute = "l"
	}
}

// Conn is the part of an LDAP connection the provider uses
type Conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// Dialer opens a connection to the directory
type Dialer func(ctx context.Context, conf Config) (Conn, error)

func dial(_ context.Context, conf Config) (Conn, error) {
	var opts []ldap.DialOpt
	if strings.HasPrefix(conf.URL, "ldaps://") {
		// #nosec G402 -- opt-in for directories with private CAs
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: conf.InsecureSkipVerify}))
	}
	conn, err := ldap.DialURL(conf.URL, opts...)
	if err != nil {
		return nil, err
	}
	conn.SetTimeout(10 * time.Second)
	return conn, nil
}

// Client looks people up in an LDAP directory. A connection is opened per
// lookup.
type Client struct {
	conf Config
	dial Dialer
}

var _ interfaces.ContactProvider = (*Client)(nil)

// Option configures the client
type Option func(*Client)

// WithDialer replaces the directory dialer
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dial = d
	}
}

// New creates an LDAP contact provider
func New(conf Config, opts ...Option) (*Client, error) {
	if conf.URL == "" || conf.BaseDN == "" {
		return nil, goerr.New("LDAP url and base_dn are required")
	}
	conf.setDefaults()

	c := &Client{conf: conf, dial: dial}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Slug() string             { return PluginSlug }
func (c *Client) Type() types.ProviderType { return types.ProviderTypeContact }

func classify(err error) error {
	switch {
	case ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject):
		return model.NewProviderError(PluginSlug, model.ProviderErrorNotFound, err)
	case ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials):
		return model.NewProviderError(PluginSlug, model.ProviderErrorAuth, err)
	case ldap.IsErrorWithCode(err, ldap.LDAPResultBusy),
		ldap.IsErrorWithCode(err, ldap.LDAPResultUnavailable),
		ldap.IsErrorWithCode(err, ldap.ErrorNetwork):
		return model.NewProviderError(PluginSlug, model.ProviderErrorTransient, err)
	}
	return model.NewProviderError(PluginSlug, model.ProviderErrorFatal, err)
}

// Lookup returns the directory profile of email, or ErrNotFound
func (c *Client) Lookup(ctx context.Context, email string) (*model.ContactInfo, error) {
	conn, err := c.dial(ctx, c.conf)
	if err != nil {
		return nil, goerr.Wrap(classify(err), "failed to connect to LDAP", goerr.V("url", c.conf.URL))
	}
	defer conn.Close()

	if c.conf.BindDN != "" {
		if err := conn.Bind(c.conf.BindDN, c.conf.BindPassword); err != nil {
			return nil, goerr.Wrap(classify(err), "failed to bind to LDAP", goerr.V("bindDN", c.conf.BindDN))
		}
	}

	filter := fmt.Sprintf("(%s=%s)", c.conf.EmailAttribute, ldap.EscapeFilter(email))
	attrs := []string{c.conf.EmailAttribute, c.conf.NameAttribute, c.conf.TitleAttribute, c.conf.TeamAttribute, c.conf.LocationAttribute}
	req := ldap.NewSearchRequest(c.conf.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 10, false, filter, attrs, nil)

	result, err := conn.Search(req)
	if err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
		return nil, goerr.Wrap(classify(err), "failed to search LDAP", goerr.V("email", email))
	}
	if result == nil || len(result.Entries) == 0 {
		return nil, goerr.Wrap(model.ErrNotFound, "contact not found", goerr.V("email", email))
	}

	entry := result.Entries[0]
	info := &model.ContactInfo{
		Email:    strings.ToLower(email),
		Name:     entry.GetAttributeValue(c.conf.NameAttribute),
		Title:    entry.GetAttributeValue(c.conf.TitleAttribute),
		Team:     entry.GetAttributeValue(c.conf.TeamAttribute),
		Location: entry.GetAttributeValue(c.conf.LocationAttribute),
	}
	if c.conf.WeblinkTemplate != "" {
		info.Weblink = strings.ReplaceAll(c.conf.WeblinkTemplate, "%s", info.Email)
	}
	return info, nil
}
