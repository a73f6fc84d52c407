package database

import (
	"net/url"
	"strconv"

	"github.com/rickgao/dggchat/internal/config"
	"github.com/rickgao/dggchat/internal/version"
)

// BuildConnString builds a PostgreSQL connection URL from config. The
// client identifies itself with application_name so archive sessions are
// visible in pg_stat_activity.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", version.Product)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
