package mssql

import (
	"fmt"
)

// Auth methods.
const (
	AuthSQL              = "sql"
	AuthServicePrincipal = "service_principal"
)

const (
	defaultPort              = 1433
	defaultConnectionTimeout = 30
)

// Config contains SQL Server connection options. DSN, when set, is passed to
// the sqlserver driver as-is and the other fields are ignored.
type Config struct {
	DSN string

	Host     string
	Port     int
	Database string

	AuthMethod string
	Username   string
	Password   string

	// Azure AD service principal.
	TenantID     string
	ClientID     string
	ClientSecret string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int // seconds
}

// options reads typed values out of a reader config map. Numbers may arrive
// as float64 when the map was decoded from JSON or YAML.
type options map[string]any

func (o options) str(key string) (string, bool) {
	v, ok := o[key].(string)
	return v, ok && v != ""
}

func (o options) integer(key string) (int, bool) {
	switch v := o[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// FromMap builds a Config from a reader config map. Without an explicit
// auth_method, client_id selects a service principal and username (or user)
// selects SQL authentication.
func FromMap(config map[string]any) (*Config, error) {
	opts := options(config)
	cfg := &Config{
		Port:              defaultPort,
		Encrypt:           true,
		ConnectionTimeout: defaultConnectionTimeout,
	}

	if dsn, ok := opts.str("dsn"); ok {
		cfg.DSN = dsn
		return cfg, nil
	}

	var ok bool
	if cfg.Host, ok = opts.str("host"); !ok {
		return nil, fmt.Errorf("host is required")
	}
	if cfg.Database, ok = opts.str("database"); !ok {
		return nil, fmt.Errorf("database is required")
	}
	if port, ok := opts.integer("port"); ok {
		cfg.Port = port
	}
	if timeout, ok := opts.integer("connection_timeout"); ok {
		cfg.ConnectionTimeout = timeout
	}

	switch v := config["encrypt"].(type) {
	case bool:
		cfg.Encrypt = v
	case string:
		cfg.Encrypt = v == "true" || v == "strict"
	}
	cfg.TrustServerCertificate, _ = config["trust_server_certificate"].(bool)

	username, hasUsername := opts.str("username")
	if !hasUsername {
		username, hasUsername = opts.str("user")
	}
	_, hasClientID := opts.str("client_id")

	cfg.AuthMethod, _ = opts.str("auth_method")
	switch {
	case cfg.AuthMethod != "":
	case hasClientID:
		cfg.AuthMethod = AuthServicePrincipal
	case hasUsername:
		cfg.AuthMethod = AuthSQL
	default:
		return nil, fmt.Errorf("could not auto-detect auth method; no credentials provided")
	}

	switch cfg.AuthMethod {
	case AuthSQL:
		cfg.Username = username
		cfg.Password, _ = config["password"].(string)
	case AuthServicePrincipal:
		cfg.TenantID, _ = opts.str("tenant_id")
		cfg.ClientID, _ = opts.str("client_id")
		cfg.ClientSecret, _ = opts.str("client_secret")
	default:
		return nil, fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", cfg.AuthMethod)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the selected auth method needs.
func (c *Config) Validate() error {
	if c.DSN != "" {
		return nil
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	var missing string
	switch c.AuthMethod {
	case AuthSQL:
		if c.Username == "" {
			missing = "username"
		}
	case AuthServicePrincipal:
		switch {
		case c.TenantID == "":
			missing = "tenant_id"
		case c.ClientID == "":
			missing = "client_id"
		case c.ClientSecret == "":
			missing = "client_secret"
		}
	default:
		return fmt.Errorf("invalid auth method: %s", c.AuthMethod)
	}
	if missing != "" {
		return fmt.Errorf("%s is required for %s authentication", missing, c.AuthMethod)
	}
	return nil
}
