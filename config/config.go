// Package config loads the properties file into one immutable value that
// is passed explicitly to the reconciler and its workers.
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/pgcompare/pgcompare/database"
)

const (
	CastStandard = "standard"
	CastNotation = "notation"

	HashMethodNormalized = "normalized"
	HashMethodRaw        = "raw"
)

// Config mirrors the flat keys of the properties file.
type Config struct {
	BatchFetchSize          int    `yaml:"batch-fetch-size"`
	BatchCommitSize         int    `yaml:"batch-commit-size"`
	BatchProgressReportSize int64  `yaml:"batch-progress-report-size"`
	LoaderThreads           int    `yaml:"loader-threads"`
	MessageQueueSize        int    `yaml:"message-queue-size"`
	FloatCast               string `yaml:"float-cast"`
	NumberCast              string `yaml:"number-cast"`
	ObserverThrottle        bool   `yaml:"observer-throttle"`
	ObserverThrottleSize    int64  `yaml:"observer-throttle-size"`
	ObserverVacuum          bool   `yaml:"observer-vacuum"`
	DatabaseSort            bool   `yaml:"database-sort"`
	Project                 int    `yaml:"project"`
	LogDestination          string `yaml:"log-destination"`
	LogLevel                string `yaml:"log-level"`
	ColumnHashMethod        string `yaml:"column-hash-method"`

	RepoHost     string `yaml:"repo-host"`
	RepoPort     int    `yaml:"repo-port"`
	RepoDBName   string `yaml:"repo-dbname"`
	RepoUser     string `yaml:"repo-user"`
	RepoPassword string `yaml:"repo-password"`
	RepoSchema   string `yaml:"repo-schema"`
	RepoSSLMode  string `yaml:"repo-sslmode"`

	SourceType     string `yaml:"source-type"`
	SourceHost     string `yaml:"source-host"`
	SourcePort     int    `yaml:"source-port"`
	SourceDBName   string `yaml:"source-dbname"`
	SourceUser     string `yaml:"source-user"`
	SourcePassword string `yaml:"source-password"`
	SourceSchema   string `yaml:"source-schema"`
	SourceSSLMode  string `yaml:"source-sslmode"`

	TargetType     string `yaml:"target-type"`
	TargetHost     string `yaml:"target-host"`
	TargetPort     int    `yaml:"target-port"`
	TargetDBName   string `yaml:"target-dbname"`
	TargetUser     string `yaml:"target-user"`
	TargetPassword string `yaml:"target-password"`
	TargetSchema   string `yaml:"target-schema"`
	TargetSSLMode  string `yaml:"target-sslmode"`
}

// Load reads path, applies defaults and environment overrides, and
// validates. A missing mandatory option or unknown dialect is a fatal
// configuration error surfaced before any worker starts.
func Load(path string) (*Config, error) {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		BatchFetchSize:          2000,
		BatchCommitSize:         2000,
		BatchProgressReportSize: 1000000,
		LoaderThreads:           2,
		MessageQueueSize:        100,
		FloatCast:               CastNotation,
		NumberCast:              CastNotation,
		ObserverThrottle:        true,
		ObserverThrottleSize:    2000000,
		ObserverVacuum:          false,
		DatabaseSort:            false,
		Project:                 1,
		LogDestination:          "stdout",
		LogLevel:                "info",
		ColumnHashMethod:        HashMethodNormalized,
		RepoPort:                5432,
		RepoSchema:              "pgcompare",
		RepoSSLMode:             "prefer",
		SourceType:              "postgres",
		SourcePort:              5432,
		TargetType:              "postgres",
		TargetPort:              5432,
	}
}

// applyEnv lets connection secrets come from the environment so the
// properties file can be checked in without passwords.
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("PGCOMPARE_REPO_PASSWORD"); ok {
		c.RepoPassword = v
	}
	if v, ok := os.LookupEnv("PGCOMPARE_SOURCE_PASSWORD"); ok {
		c.SourcePassword = v
	}
	if v, ok := os.LookupEnv("PGCOMPARE_TARGET_PASSWORD"); ok {
		c.TargetPassword = v
	}
}

func (c *Config) validate() error {
	if c.RepoHost == "" || c.RepoDBName == "" || c.RepoUser == "" {
		return fmt.Errorf("repo-host, repo-dbname and repo-user are mandatory")
	}
	for key, val := range map[string]string{
		"source-type": c.SourceType,
		"target-type": c.TargetType,
	} {
		if _, err := database.ParseDialect(val); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	for key, val := range map[string]string{
		"float-cast":  c.FloatCast,
		"number-cast": c.NumberCast,
	} {
		if val != CastStandard && val != CastNotation {
			return fmt.Errorf("%s must be %q or %q, got %q", key, CastStandard, CastNotation, val)
		}
	}
	if m := c.ColumnHashMethod; m != HashMethodNormalized && m != HashMethodRaw {
		return fmt.Errorf("column-hash-method must be %q or %q, got %q", HashMethodNormalized, HashMethodRaw, m)
	}
	for key, val := range map[string]string{
		"repo-sslmode":   c.RepoSSLMode,
		"source-sslmode": c.SourceSSLMode,
		"target-sslmode": c.TargetSSLMode,
	} {
		switch val {
		case "", "disable", "prefer", "require":
		default:
			return fmt.Errorf("%s must be one of disable, prefer, require", key)
		}
	}
	if c.MessageQueueSize < 1 {
		return fmt.Errorf("message-queue-size must be positive")
	}
	if c.BatchFetchSize < 1 {
		return fmt.Errorf("batch-fetch-size must be positive")
	}
	return nil
}

// Repo returns the repository connection parameters.
func (c *Config) Repo() database.Config {
	return database.Config{
		Type: database.Postgres, Host: c.RepoHost, Port: c.RepoPort,
		DBName: c.RepoDBName, User: c.RepoUser, Password: c.RepoPassword,
		Schema: c.RepoSchema, SSLMode: c.RepoSSLMode,
	}
}

// Side returns the connection parameters for "source" or "target".
func (c *Config) Side(role string) database.Config {
	if role == "source" {
		d, _ := database.ParseDialect(c.SourceType)
		return database.Config{
			Type: d, Host: c.SourceHost, Port: c.SourcePort,
			DBName: c.SourceDBName, User: c.SourceUser, Password: c.SourcePassword,
			Schema: c.SourceSchema, SSLMode: c.SourceSSLMode,
		}
	}
	d, _ := database.ParseDialect(c.TargetType)
	return database.Config{
		Type: d, Host: c.TargetHost, Port: c.TargetPort,
		DBName: c.TargetDBName, User: c.TargetUser, Password: c.TargetPassword,
		Schema: c.TargetSchema, SSLMode: c.TargetSSLMode,
	}
}

// Redacted renders the settings for startup logging, passwords elided.
func (c *Config) Redacted() []string {
	out, _ := yaml.Marshal(c)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.Contains(l, "password") {
			continue
		}
		kept = append(kept, l)
	}
	return kept
}
