// Package users implements the User Directory (spec §4.2): an
// idempotent upsert keyed by external subject id, backed by Postgres.
package users

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog"

	"github.com/collabhub/server/internal/apperr"
)

// Profile holds the mutable fields re-auth refreshes.
type Profile struct {
	Email  string
	Name   string
	Avatar string
}

// User is the durable identity record.
type User struct {
	ID      string
	Subject string
	Profile Profile
}

// Directory upserts identity records keyed by external subject id.
type Directory struct {
	db  *sql.DB
	log zerolog.Logger
}

// New constructs a Directory over an open database handle.
func New(db *sql.DB, log zerolog.Logger) *Directory {
	return &Directory{db: db, log: log.With().Str("component", "users").Logger()}
}

// Upsert inserts or updates the user identified by subject, returning
// the stable internal id. Calling it twice with the same subject and
// different profile fields updates the mutable fields and returns the
// same id — the operation is idempotent on subject.
func (d *Directory) Upsert(ctx context.Context, subject string, profile Profile) (string, error) {
	if subject == "" {
		return "", apperr.New(apperr.Validation, "subject is required")
	}

	const q = `
		INSERT INTO users (subject, email, name, avatar)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject) DO UPDATE
			SET email = EXCLUDED.email,
			    name = EXCLUDED.name,
			    avatar = EXCLUDED.avatar
		RETURNING id`

	var id string

	err := d.db.QueryRowContext(ctx, q, subject, profile.Email, profile.Name, profile.Avatar).Scan(&id)
	if err != nil {
		return "", apperr.Wrap(apperr.Transient, "upsert user", err)
	}

	return id, nil
}

// Get loads a user by internal id.
func (d *Directory) Get(ctx context.Context, id string) (User, error) {
	const q = `SELECT id, subject, email, name, avatar FROM users WHERE id = $1`

	var u User

	err := d.db.QueryRowContext(ctx, q, id).Scan(&u.ID, &u.Subject, &u.Profile.Email, &u.Profile.Name, &u.Profile.Avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, apperr.New(apperr.NotFound, "user not found")
	}

	if err != nil {
		return User{}, apperr.Wrap(apperr.Transient, "load user", err)
	}

	return u, nil
}

// Schema is the DDL for the users table, applied by cmd/migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	subject TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	avatar TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

