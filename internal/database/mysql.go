package database

import (
	"errors"
	"net"
	"strconv"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const defaultMySQLPort = 3306

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(dsn), gormConfig())
}

// buildMySQLDSN renders a driver DSN. Timestamps are parsed and stored in UTC so
// token expiries compare the same way on every backend.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		parsed, err := mysqldrv.ParseDSN(cfg.DSN)
		if err != nil {
			return "", err
		}
		parsed.ParseTime = true
		return parsed.FormatDSN(), nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql configuration requires user and database name")
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = defaultMySQLPort
	}

	dc := mysqldrv.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	dc.DBName = cfg.Name
	dc.ParseTime = true
	dc.Loc = time.UTC
	dc.Params = map[string]string{"charset": "utf8mb4"}
	for k, v := range cfg.Options {
		dc.Params[k] = v
	}
	return dc.FormatDSN(), nil
}
