package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ParsedDatabaseURL is the decomposed form of an ATTENDLY_DATABASE_URL value.
// Options carries any query parameters beyond sslmode (search_path etc).
type ParsedDatabaseURL struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Options  map[string]string
}

// ParseDatabaseURL decomposes a postgres:// or postgresql:// connection URL.
func ParseDatabaseURL(rawURL string) (*ParsedDatabaseURL, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("database URL is empty")
	}

	// libpq accepts both schemes; normalize before parsing
	if strings.HasPrefix(rawURL, "postgresql://") {
		rawURL = "postgres://" + strings.TrimPrefix(rawURL, "postgresql://")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if u.Scheme != "postgres" {
		return nil, fmt.Errorf("unsupported database URL scheme %q", u.Scheme)
	}

	parsed := &ParsedDatabaseURL{
		Host:     u.Hostname(),
		Port:     5432,
		Database: strings.TrimPrefix(u.Path, "/"),
		SSLMode:  "disable",
		Options:  make(map[string]string),
	}

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid port in database URL: %w", err)
		}
		parsed.Port = port
	}

	if u.User != nil {
		parsed.User = u.User.Username()
		parsed.Password, _ = u.User.Password()
	}

	for key, values := range u.Query() {
		if len(values) > 0 {
			parsed.Options[key] = values[0]
		}
	}
	if sslMode, ok := parsed.Options["sslmode"]; ok {
		parsed.SSLMode = sslMode
		delete(parsed.Options, "sslmode")
	}

	return parsed, nil
}

// BuildDatabaseURL assembles a postgres:// URL from individual components.
// The password is query-escaped so special characters survive the round trip.
func BuildDatabaseURL(host string, port int, user, password, database, sslMode string) string {
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		user, url.QueryEscape(password), host, port, database, sslMode,
	)
}

// ToDSN renders the parsed URL as a libpq key=value connection string.
func (p *ParsedDatabaseURL) ToDSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
	for key, value := range p.Options {
		dsn += fmt.Sprintf(" %s=%s", key, value)
	}
	return dsn
}

// ToURL renders the parsed components back to URL form.
func (p *ParsedDatabaseURL) ToURL() string {
	return BuildDatabaseURL(p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}
