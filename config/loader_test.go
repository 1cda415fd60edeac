// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFallsBackToDefaultsWithoutAnyFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Environment != "test" {
		t.Fatalf("Environment = %q, want test", cfg.Environment)
	}
	if cfg.Server.KeySize != 2048 {
		t.Fatalf("Server.KeySize = %d, want 2048", cfg.Server.KeySize)
	}
}

func TestLoadPrefersEnvironmentFileOverDefault(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "default.yaml"), "server:\n  listen_addr: \":1\"\n")
	writeFile(t, filepath.Join(dir, "staging.yaml"), "server:\n  listen_addr: \":9999\"\n")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "staging"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":9999" {
		t.Fatalf("Server.ListenAddr = %q, want :9999", cfg.Server.ListenAddr)
	}
}

func TestLoadAppliesEnvironmentOverridesLast(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "default.yaml"), "server:\n  listen_addr: \":1\"\n")
	t.Setenv("AGENTRPC_SERVER_LISTEN_ADDR", ":4242")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "default"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":4242" {
		t.Fatalf("Server.ListenAddr = %q, want :4242 (env override should win)", cfg.Server.ListenAddr)
	}
}

func TestLoadFailsValidationOnBadKeySize(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "default.yaml"), "server:\n  key_size: 1024\n")

	_, err := Load(LoaderOptions{ConfigDir: dir, Environment: "default"})
	if err == nil {
		t.Fatal("Load() expected validation error for unsupported key_size, got nil")
	}
}

func TestLoadSkipValidationBypassesErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "default.yaml"), "server:\n  key_size: 1024\n")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "default", SkipValidation: true})
	if err != nil {
		t.Fatalf("Load() error = %v, want nil with SkipValidation", err)
	}
	if cfg.Server.KeySize != 1024 {
		t.Fatalf("Server.KeySize = %d, want 1024", cfg.Server.KeySize)
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writeFile(%s): %v", path, err)
	}
}
