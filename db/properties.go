// ABOUTME: Key/value property store used for schema versioning and scan-state flags
// ABOUTME: Values are strings; integer helpers parse on read
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

const (
	PropSchemaVersion         = "db_schema_version"
	PropDatabaseID            = "database_instance_id"
	PropAggregationAlgorithm  = "aggregation_algorithm_version"
	PropLocale                = "locale"
	PropDirectoryScanComplete = "directory_scan_complete"
	PropSearchIndexVersion    = "search_index_version"
)

// GetProperty returns the stored value or def when the key is absent.
func GetProperty(ctx context.Context, q Querier, key, def string) (string, error) {
	var value sql.NullString
	err := q.QueryRowContext(ctx, `SELECT property_value FROM properties WHERE property_key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read property %s: %w", key, err)
	}
	if !value.Valid {
		return def, nil
	}
	return value.String, nil
}

func SetProperty(ctx context.Context, q Querier, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO properties (property_key, property_value) VALUES (?, ?)
		ON CONFLICT(property_key) DO UPDATE SET property_value = excluded.property_value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write property %s: %w", key, err)
	}
	return nil
}

// GetIntProperty returns def when the key is absent or not an integer.
func GetIntProperty(ctx context.Context, q Querier, key string, def int) (int, error) {
	s, err := GetProperty(ctx, q, key, "")
	if err != nil {
		return 0, err
	}
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def, nil
	}
	return n, nil
}

func SetIntProperty(ctx context.Context, q Querier, key string, value int) error {
	return SetProperty(ctx, q, key, strconv.Itoa(value))
}
