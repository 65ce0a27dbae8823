// Package repository contains the data access layer for the dispatch engine.
package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides data access for queue entries, leads, campaigns,
// call logs, phone numbers, enrollments, and pacing settings.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a dispatch repository backed by the given pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping verifies database connectivity for the health check command.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
