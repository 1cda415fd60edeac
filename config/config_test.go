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

package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromFileYAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	original := &Config{
		Environment: "staging",
		Server: ServerConfig{
			ListenAddr:        ":7000",
			KeySize:           4096,
			MessageEncryption: true,
		},
		Client: ClientConfig{
			ServerURL:         "ws://localhost:7000",
			InvocationTimeout: 15 * time.Second,
		},
	}

	if err := SaveToFile(original, path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Environment != "staging" {
		t.Fatalf("Environment = %q, want staging", loaded.Environment)
	}
	if loaded.Server.ListenAddr != ":7000" {
		t.Fatalf("Server.ListenAddr = %q, want :7000", loaded.Server.ListenAddr)
	}
	if loaded.Server.KeySize != 4096 {
		t.Fatalf("Server.KeySize = %d, want 4096", loaded.Server.KeySize)
	}
	if loaded.Client.InvocationTimeout != 15*time.Second {
		t.Fatalf("Client.InvocationTimeout = %v, want 15s", loaded.Client.InvocationTimeout)
	}
}

func TestLoadFromFileJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	original := &Config{Server: ServerConfig{ListenAddr: ":8000"}}

	if err := SaveToFile(original, path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Server.ListenAddr != ":8000" {
		t.Fatalf("Server.ListenAddr = %q, want :8000", loaded.Server.ListenAddr)
	}
}

func TestLoadFromFileMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("LoadFromFile() expected error for missing file, got nil")
	}
}

func TestSetDefaultsFillsEveryZeroValue(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.Server.KeySize != 2048 {
		t.Errorf("Server.KeySize = %d, want 2048", cfg.Server.KeySize)
	}
	if cfg.Server.ReapInterval != 30*time.Second {
		t.Errorf("Server.ReapInterval = %v, want 30s", cfg.Server.ReapInterval)
	}
	if cfg.Client.InvocationTimeout != 30*time.Second {
		t.Errorf("Client.InvocationTimeout = %v, want 30s", cfg.Client.InvocationTimeout)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("Store.Driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("Metrics.Addr = %q, want :9090", cfg.Metrics.Addr)
	}
}

func TestValidateFlagsUnsupportedKeySize(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	cfg.Server.KeySize = 1024

	issues := Validate(cfg)
	if !hasErrorField(issues, "server.key_size") {
		t.Fatalf("Validate() = %+v, want an error on server.key_size", issues)
	}
}

func TestValidateRequiresJWTPathWhenAuthRequired(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	cfg.Server.AuthenticationRequired = true

	issues := Validate(cfg)
	if !hasErrorField(issues, "server.jwt_public_key_path") {
		t.Fatalf("Validate() = %+v, want an error on server.jwt_public_key_path", issues)
	}
}

func TestValidateRequiresDSNForPostgresDriver(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	cfg.Store.Driver = "postgres"

	issues := Validate(cfg)
	if !hasErrorField(issues, "store.dsn") {
		t.Fatalf("Validate() = %+v, want an error on store.dsn", issues)
	}
}

func TestValidatePassesOnDefaults(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	for _, issue := range Validate(cfg) {
		if issue.Level == "error" {
			t.Fatalf("Validate() unexpected error on defaults: %+v", issue)
		}
	}
}

func hasErrorField(issues []ValidationIssue, field string) bool {
	for _, issue := range issues {
		if issue.Field == field && issue.Level == "error" {
			return true
		}
	}
	return false
}
