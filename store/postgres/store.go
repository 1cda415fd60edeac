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

// Package postgres is a pgx/v5-backed store.IdentityStore.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sage-x-project/agentrpc/store"
)

// Store implements store.IdentityStore against a connection pool. The
// caller is expected to have applied the schema in schema.sql before use.
type Store struct {
	pool *pgxpool.Pool
}

// Config holds the connection parameters for NewStore.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewStore opens a pool and verifies connectivity with a single ping.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) SaveIdentity(ctx context.Context, identity *store.Identity) error {
	metadata, err := json.Marshal(identity.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO identities (id, public_key_blob, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET public_key_blob = EXCLUDED.public_key_blob,
		    metadata = EXCLUDED.metadata,
		    updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, query, identity.ID, identity.PublicKeyBlob, metadata); err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	return nil
}

func (s *Store) LoadIdentity(ctx context.Context, id string) (*store.Identity, error) {
	query := `
		SELECT id, public_key_blob, metadata, created_at, updated_at
		FROM identities
		WHERE id = $1
	`

	var identity store.Identity
	var metadataJSON []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&identity.ID, &identity.PublicKeyBlob, &metadataJSON, &identity.CreatedAt, &identity.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("identity not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &identity.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &identity, nil
}

func (s *Store) RecordSessionEvent(ctx context.Context, evt *store.SessionEvent) error {
	query := `
		INSERT INTO session_events (session_id, identity, event, occurred_at, detail)
		VALUES ($1, $2, $3, NOW(), $4)
	`
	if _, err := s.pool.Exec(ctx, query, evt.SessionID, evt.Identity, evt.Event, evt.Detail); err != nil {
		return fmt.Errorf("failed to record session event: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
