package postgres

import (
	"fmt"
	"net/url"
	"strings"
)

// Descriptor is a typed PostgreSQL connection address. Tenant addresses are
// derived from the directory address by substituting only the database name;
// host, port and credentials are inherited unchanged. Keeping the address as
// a parsed structure rather than doing string surgery on the DSN means a
// malformed directory DSN is rejected once, at parse time.
type Descriptor struct {
	Scheme   string // "postgres" or "postgresql"
	User     string
	Password string
	Host     string // includes port if present
	Database string
	Params   url.Values // sslmode, connect_timeout, ...
}

// ParseDescriptor parses a postgres:// URL into a Descriptor.
func ParseDescriptor(connString string) (*Descriptor, error) {
	u, err := url.Parse(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, fmt.Errorf("unsupported connection string scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("connection string has no host")
	}

	d := &Descriptor{
		Scheme:   u.Scheme,
		Host:     u.Host,
		Database: strings.TrimPrefix(u.Path, "/"),
		Params:   u.Query(),
	}
	if u.User != nil {
		d.User = u.User.Username()
		d.Password, _ = u.User.Password()
	}

	if d.Database == "" {
		return nil, fmt.Errorf("connection string has no database name")
	}

	return d, nil
}

// WithDatabase returns a copy of the descriptor addressing a different
// database on the same server with the same credentials.
func (d *Descriptor) WithDatabase(name string) *Descriptor {
	clone := *d
	clone.Params = url.Values{}
	for k, v := range d.Params {
		clone.Params[k] = append([]string(nil), v...)
	}
	clone.Database = name
	return &clone
}

// ConnString renders the descriptor back into a postgres:// URL.
func (d *Descriptor) ConnString() string {
	u := url.URL{
		Scheme:   d.Scheme,
		Host:     d.Host,
		Path:     "/" + d.Database,
		RawQuery: d.Params.Encode(),
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	return u.String()
}

// Redacted renders the address without credentials, for logs and errors.
func (d *Descriptor) Redacted() string {
	return fmt.Sprintf("%s://%s/%s", d.Scheme, d.Host, d.Database)
}
