package connstore

import (
	"fmt"
	"net/url"
)

// BuildDSN turns a resolved Connection (with Password already decrypted) into
// a driver-specific DSN string for database/sql.Open. Only postgres and
// sqlite are supported.
func BuildDSN(c *Connection) (string, error) {
	switch c.Driver {
	case "postgres":
		return buildPostgresDSN(c), nil
	case "sqlite":
		return c.DatabaseName, nil
	default:
		return "", fmt.Errorf("unsupported driver %q (only postgres and sqlite are available)", c.Driver)
	}
}

func buildPostgresDSN(c *Connection) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.ServerName, orDefaultPort(c.Port)),
		Path:   "/" + c.DatabaseName,
	}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	q := u.Query()
	if c.Encrypt {
		if c.TrustServerCertificate {
			q.Set("sslmode", "require")
		} else {
			q.Set("sslmode", "verify-full")
		}
	} else {
		q.Set("sslmode", "disable")
	}
	if c.ConnectionTimeout > 0 {
		q.Set("connect_timeout", fmt.Sprintf("%d", c.ConnectionTimeout))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func orDefaultPort(p int) int {
	if p <= 0 {
		return 5432
	}
	return p
}
