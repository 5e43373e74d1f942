package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/localmarket/storefront/internal/location"
)

// zipDirectoryQuerier is the Postgres zip directory as seen by the layered
// resolver.
type zipDirectoryQuerier interface {
	LookupZip(ctx context.Context, zip string) (location.ZipInfo, error)
	UpsertZip(ctx context.Context, info location.ZipInfo) error
}

// zipDirectory keeps resolved zip codes in the zip_codes table so repeat
// lookups do not reach the remote service.
type zipDirectory struct {
	db *sql.DB
}

func newZipDirectory(db *sql.DB) *zipDirectory {
	return &zipDirectory{db: db}
}

const createZipCodesTable = `CREATE TABLE IF NOT EXISTS zip_codes (
	zip_code   TEXT PRIMARY KEY,
	city       TEXT NOT NULL,
	state      TEXT NOT NULL,
	latitude   DOUBLE PRECISION,
	longitude  DOUBLE PRECISION,
	updated_at TIMESTAMP NOT NULL DEFAULT NOW()
)`

const lookupZip = `SELECT zip_code, city, state, latitude, longitude FROM zip_codes WHERE zip_code = $1`

const upsertZip = `INSERT INTO zip_codes (zip_code, city, state, latitude, longitude, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (zip_code) DO UPDATE SET
	city = EXCLUDED.city,
	state = EXCLUDED.state,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	updated_at = NOW()`

func (d *zipDirectory) ensureSchema(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, createZipCodesTable); err != nil {
		return fmt.Errorf("could not create zip_codes table: %w", err)
	}
	return nil
}

func (d *zipDirectory) LookupZip(ctx context.Context, zip string) (location.ZipInfo, error) {
	var info location.ZipInfo
	var lat, lon sql.NullFloat64
	err := d.db.QueryRowContext(ctx, lookupZip, zip).Scan(&info.ZipCode, &info.City, &info.State, &lat, &lon)
	if errors.Is(err, sql.ErrNoRows) {
		return location.ZipInfo{}, location.ErrNotFound
	}
	if err != nil {
		return location.ZipInfo{}, fmt.Errorf("database error when fetching zip %s: %w", zip, err)
	}
	info.Latitude = lat.Float64
	info.Longitude = lon.Float64
	return info, nil
}

func (d *zipDirectory) UpsertZip(ctx context.Context, info location.ZipInfo) error {
	_, err := d.db.ExecContext(ctx, upsertZip,
		info.ZipCode, info.City, info.State,
		nullFloat(info.Latitude, info.Longitude), nullFloat(info.Longitude, info.Latitude),
	)
	if err != nil {
		return fmt.Errorf("could not upsert zip %s: %w", info.ZipCode, err)
	}
	return nil
}

// nullFloat stores v as NULL when the pair (v, other) is the zero point,
// which the lookup service returns for zips without coordinates.
func nullFloat(v, other float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: v != 0 || other != 0}
}
