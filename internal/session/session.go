// Package session holds the database connection parameters entered for one
// interactive session. Parameters live in memory only and are never written
// to disk.
package session

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverDuckDB   = "duckdb"
)

// Params are the connection parameters used for every query of a session.
// Password may be empty.
type Params struct {
	Driver   string `json:"driver,omitempty"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password,omitempty"`
	Database string `json:"database"`
}

// Defaults returns the values pre-filled in the configuration form.
func Defaults() Params {
	return Params{
		Driver:   DriverMySQL,
		Host:     "localhost",
		Port:     "3306",
		User:     "root",
		Password: "",
		Database: "sales_database",
	}
}

// Merge returns p with every non-empty field of override applied. Password is
// always taken from override when overridePassword is set, so an explicit
// empty password can replace a stored one.
func (p Params) Merge(override Params, overridePassword bool) Params {
	out := p
	if override.Driver != "" {
		out.Driver = override.Driver
	}
	if override.Host != "" {
		out.Host = override.Host
	}
	if override.Port != "" {
		out.Port = override.Port
	}
	if override.User != "" {
		out.User = override.User
	}
	if override.Database != "" {
		out.Database = override.Database
	}
	if overridePassword || override.Password != "" {
		out.Password = override.Password
	}
	return out
}

func (p Params) driver() string {
	driver := strings.ToLower(strings.TrimSpace(p.Driver))
	if driver == "" {
		return DriverMySQL
	}
	return driver
}

// DriverName reports the normalized driver, defaulting to mysql.
func (p Params) DriverName() string {
	return p.driver()
}

func (p Params) Validate() error {
	switch p.driver() {
	case DriverMySQL, DriverPostgres:
		if strings.TrimSpace(p.Host) == "" {
			return fmt.Errorf("host is required")
		}
		if strings.TrimSpace(p.User) == "" {
			return fmt.Errorf("user is required")
		}
		if strings.TrimSpace(p.Database) == "" {
			return fmt.Errorf("database is required")
		}
	case DriverDuckDB:
	default:
		return fmt.Errorf("unsupported driver %q", p.Driver)
	}
	return nil
}

// DSN renders the connection string understood by the driver's database/sql
// implementation. The port is honored for network drivers.
func (p Params) DSN() (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	switch p.driver() {
	case DriverMySQL:
		cfg := mysql.NewConfig()
		cfg.User = p.User
		cfg.Passwd = p.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(p.Host, p.portOr("3306"))
		cfg.DBName = p.Database
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	case DriverPostgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(p.User, p.Password),
			Host:   net.JoinHostPort(p.Host, p.portOr("5432")),
			Path:   "/" + p.Database,
		}
		return u.String(), nil
	default:
		return strings.TrimSpace(p.Database), nil
	}
}

func (p Params) portOr(fallback string) string {
	port := strings.TrimSpace(p.Port)
	if port == "" {
		return fallback
	}
	return port
}

// String describes the connection without the password.
func (p Params) String() string {
	if p.driver() == DriverDuckDB {
		database := p.Database
		if database == "" {
			database = ":memory:"
		}
		return "duckdb:" + database
	}
	return fmt.Sprintf("%s://%s@%s/%s", p.driver(), p.User, net.JoinHostPort(p.Host, p.Port), p.Database)
}

// Store keeps the current session parameters for the lifetime of a process.
type Store struct {
	mu     sync.RWMutex
	params Params
}

func NewStore(initial Params) *Store {
	return &Store{params: initial}
}

func (s *Store) Get() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

func (s *Store) Set(params Params) {
	s.mu.Lock()
	s.params = params
	s.mu.Unlock()
}
