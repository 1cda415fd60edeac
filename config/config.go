// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package config loads the external configuration keys named in spec §6
// for both the server and client sides of the session runtime, plus the
// ambient logging and optional identity-store settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document, loadable as YAML (with
// a JSON fallback) via LoadFromFile.
type Config struct {
	Environment string        `yaml:"environment" json:"environment"`
	Server      ServerConfig  `yaml:"server" json:"server"`
	Client      ClientConfig  `yaml:"client" json:"client"`
	Logging     LoggingConfig `yaml:"logging" json:"logging"`
	Store       StoreConfig   `yaml:"store" json:"store"`
	Metrics     MetricsConfig `yaml:"metrics" json:"metrics"`
}

// ServerConfig mirrors server.Config's externally configurable keys.
type ServerConfig struct {
	ListenAddr               string        `yaml:"listen_addr" json:"listen_addr"`
	KeySize                  int           `yaml:"key_size" json:"key_size"`
	MessageEncryption        bool          `yaml:"message_encryption" json:"message_encryption"`
	AuthenticationRequired   bool          `yaml:"authentication_required" json:"authentication_required"`
	JWTPublicKeyPath         string        `yaml:"jwt_public_key_path" json:"jwt_public_key_path"`
	JWTIssuer                string        `yaml:"jwt_issuer" json:"jwt_issuer"`
	InactivityTimeout        time.Duration `yaml:"inactivity_timeout" json:"inactivity_timeout"`
	ReapInterval             time.Duration `yaml:"reap_interval" json:"reap_interval"`
	HandshakeTimeout         time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`
	AuthenticationTimeout    time.Duration `yaml:"authentication_timeout" json:"authentication_timeout"`
	UniqueServerInstanceName string        `yaml:"unique_server_instance_name" json:"unique_server_instance_name"`
}

// ClientConfig mirrors rpcclient.Config's externally configurable keys.
type ClientConfig struct {
	ServerURL                string        `yaml:"server_url" json:"server_url"`
	KeySize                  int           `yaml:"key_size" json:"key_size"`
	MessageEncryption        bool          `yaml:"message_encryption" json:"message_encryption"`
	BearerToken              string        `yaml:"bearer_token" json:"bearer_token"`
	ConnectionTimeout        time.Duration `yaml:"connection_timeout" json:"connection_timeout"`
	AuthenticationTimeout    time.Duration `yaml:"authentication_timeout" json:"authentication_timeout"`
	InvocationTimeout        time.Duration `yaml:"invocation_timeout" json:"invocation_timeout"`
	KeepSessionAliveInterval time.Duration `yaml:"keep_session_alive_interval" json:"keep_session_alive_interval"`
	SerializeCallbacks       bool          `yaml:"serialize_callbacks" json:"serialize_callbacks"`
}

// LoggingConfig controls internal/logger's output.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // json, text
	Output string `yaml:"output" json:"output"` // stdout, stderr, file path
}

// StoreConfig selects and configures the optional IdentityStore backend.
type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver"` // memory, postgres
	DSN    string `yaml:"dsn" json:"dsn"`
}

// MetricsConfig controls the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// LoadFromFile reads a YAML (or, failing that, JSON) configuration file
// and applies defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("config: parse %s (tried YAML and JSON): %w", path, err)
		}
	}
	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile writes cfg back out, choosing JSON or YAML by extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Server.KeySize == 0 {
		cfg.Server.KeySize = 2048
	}
	if cfg.Server.ReapInterval == 0 {
		cfg.Server.ReapInterval = 30 * time.Second
	}
	if cfg.Server.HandshakeTimeout == 0 {
		cfg.Server.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Server.AuthenticationTimeout == 0 {
		cfg.Server.AuthenticationTimeout = 10 * time.Second
	}

	if cfg.Client.KeySize == 0 {
		cfg.Client.KeySize = 2048
	}
	if cfg.Client.ConnectionTimeout == 0 {
		cfg.Client.ConnectionTimeout = 10 * time.Second
	}
	if cfg.Client.AuthenticationTimeout == 0 {
		cfg.Client.AuthenticationTimeout = 10 * time.Second
	}
	if cfg.Client.InvocationTimeout == 0 {
		cfg.Client.InvocationTimeout = 30 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}

// ValidationIssue is one problem found by Validate, leveled so callers can
// choose to fail only on "error" and merely log on "warning".
type ValidationIssue struct {
	Field   string
	Level   string // "error" or "warning"
	Message string
}

// Validate checks cfg for internally inconsistent or unsafe settings.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Server.KeySize != 2048 && cfg.Server.KeySize != 4096 {
		issues = append(issues, ValidationIssue{Field: "server.key_size", Level: "error", Message: "must be 2048 or 4096"})
	}
	if cfg.Server.AuthenticationRequired && cfg.Server.JWTPublicKeyPath == "" {
		issues = append(issues, ValidationIssue{Field: "server.jwt_public_key_path", Level: "error", Message: "required when authentication_required is set"})
	}
	if cfg.Client.KeySize != 2048 && cfg.Client.KeySize != 4096 {
		issues = append(issues, ValidationIssue{Field: "client.key_size", Level: "error", Message: "must be 2048 or 4096"})
	}
	if cfg.Store.Driver == "postgres" && cfg.Store.DSN == "" {
		issues = append(issues, ValidationIssue{Field: "store.dsn", Level: "error", Message: "required when store.driver is postgres"})
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, ValidationIssue{Field: "logging.level", Level: "warning", Message: "unrecognized level, defaulting to info at runtime"})
	}
	return issues
}
