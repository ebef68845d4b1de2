/**
 * @description
 * Key-value settings backends used by the accounting credential store. The
 * PostgreSQL backend keeps settings in `integration_settings`; the Redis
 * backend keeps them in one hash. Both apply multi-key writes atomically.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL access.
 * - github.com/redis/go-redis/v9: Redis access.
 */

package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// PostgresSettingsStore persists settings rows in PostgreSQL.
type PostgresSettingsStore struct {
	db *pgxpool.Pool
}

func NewPostgresSettingsStore(db *pgxpool.Pool) *PostgresSettingsStore {
	return &PostgresSettingsStore{db: db}
}

// LoadSettings returns the stored values for keys; missing keys are omitted.
func (s *PostgresSettingsStore) LoadSettings(ctx context.Context, keys []string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return values, nil
	}

	rows, err := s.db.Query(ctx, `SELECT key, value FROM integration_settings WHERE key = ANY($1::text[])`, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	return values, rows.Err()
}

// SaveSettings upserts every value in one transaction.
func (s *PostgresSettingsStore) SaveSettings(ctx context.Context, values map[string]string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for key, value := range values {
		if _, err := tx.Exec(ctx, `
			INSERT INTO integration_settings (key, value, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			key, value,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// DeleteSettings removes keys in one statement.
func (s *PostgresSettingsStore) DeleteSettings(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `DELETE FROM integration_settings WHERE key = ANY($1::text[])`, keys)
	return err
}

// RedisSettingsStore persists settings as fields of a single Redis hash.
type RedisSettingsStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisSettingsStore(client redis.UniversalClient, prefix string) *RedisSettingsStore {
	return &RedisSettingsStore{client: client, key: settingsHashKey(prefix)}
}

func (s *RedisSettingsStore) LoadSettings(ctx context.Context, keys []string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return values, nil
	}

	raw, err := s.client.HMGet(ctx, s.key, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	for i, v := range raw {
		if str, ok := v.(string); ok {
			values[keys[i]] = str
		}
	}
	return values, nil
}

// SaveSettings writes all fields inside MULTI/EXEC.
func (s *RedisSettingsStore) SaveSettings(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = v
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key, fields)
		return nil
	})
	return err
}

func (s *RedisSettingsStore) DeleteSettings(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.key, keys...)
		return nil
	})
	return err
}

func settingsHashKey(prefix string) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "schoolfees"
	}
	return trimmed + ":integration_settings"
}
