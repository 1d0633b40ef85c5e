package utils

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/dfryer1193/schemad/internal/config"
	"github.com/go-sql-driver/mysql"
)

// BuildConnectionString constructs the driver DSN for cfg, connecting to
// dbName instead of cfg.Name when it is not empty.
func BuildConnectionString(cfg config.Database, dbName string) (string, error) {
	if cfg.URL != "" && dbName == "" {
		return cfg.URL, nil
	}
	if cfg.Dialect == "sqlite" || cfg.Dialect == "sqlite3" {
		return SQLiteDSN(cfg.Path), nil
	}
	if dbName == "" {
		dbName = cfg.Name
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return "", fmt.Errorf("invalid port number: %d", cfg.Port)
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	switch cfg.Dialect {
	case "postgres", "postgresql":
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.User, cfg.Password),
			Host:   addr,
			Path:   "/" + dbName,
		}
		return u.String(), nil
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = addr
		mc.DBName = dbName
		mc.ParseTime = true
		// Several statements of one step may share an Exec.
		mc.MultiStatements = true
		return mc.FormatDSN(), nil
	}
	return "", fmt.Errorf("unknown dialect %q", cfg.Dialect)
}

// SQLiteDSN opens path with foreign keys enforced and a busy timeout, so
// that a second writer waits instead of failing at once.
func SQLiteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + q.Encode()
}
