package database

import (
	"fmt"
	"net/url"

	"github.com/rickgao/tsingest/internal/config"
)

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.DBConfig) string {
	// URL-encode password to handle special characters
	escapedPassword := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		escapedPassword,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
	)

	if secs := int(cfg.ConnectTimeout.Seconds()); secs > 0 {
		connStr += fmt.Sprintf("&connect_timeout=%d", secs)
	}
	return connStr
}
