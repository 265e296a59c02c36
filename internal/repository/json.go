package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
)

// SchemaVersion is the version written into every persisted collection.
const SchemaVersion = 1

type envelope[T any] struct {
	Version int `json:"version"`
	Items   []T `json:"items"`
}

// MigrateFunc upgrades items decoded from an older schema version in place.
type MigrateFunc[T any] func(fromVersion int, items []T) []T

// LoadJSON decodes the value under key into T. A missing key or an undecodable value
// yields def; only backend failures are returned as errors.
func LoadJSON[T any](ctx context.Context, s KeyValueStore, l logger.Logger, key string, def T) (T, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return def, nil
		}
		return def, fmt.Errorf("load %s: %w", key, err)
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		l.Warnf(ctx, "repository.LoadJSON: discarding undecodable value for %s: %v", key, err)
		return def, nil
	}

	return v, nil
}

func SaveJSON[T any](ctx context.Context, s KeyValueStore, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	if err := s.Set(ctx, key, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}

	return nil
}

// LoadList reads a versioned collection. The legacy bare-array format is accepted as
// version 0 and passed through migrate; unknown versions and malformed data yield an
// empty list.
func LoadList[T any](ctx context.Context, s KeyValueStore, l logger.Logger, key string, migrate MigrateFunc[T]) ([]T, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []T{}, nil
		}
		return []T{}, fmt.Errorf("load %s: %w", key, err)
	}

	items, version, err := decodeList[T](raw)
	if err != nil {
		l.Warnf(ctx, "repository.LoadList: discarding undecodable value for %s: %v", key, err)
		return []T{}, nil
	}

	switch {
	case version == SchemaVersion:
	case version < SchemaVersion && migrate != nil:
		items = migrate(version, items)
	case version < SchemaVersion:
	default:
		l.Warnf(ctx, "repository.LoadList: unsupported schema version %d for %s", version, key)
		return []T{}, nil
	}

	if items == nil {
		items = []T{}
	}

	return items, nil
}

func SaveList[T any](ctx context.Context, s KeyValueStore, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	return SaveJSON(ctx, s, key, envelope[T]{Version: SchemaVersion, Items: items})
}

func decodeList[T any](raw []byte) ([]T, int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, 0, errors.New("empty value")
	}

	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, 0, err
		}
		return items, 0, nil
	case '{':
		var env envelope[T]
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, 0, err
		}
		if env.Version <= 0 {
			return nil, 0, fmt.Errorf("missing schema version")
		}
		return env.Items, env.Version, nil
	default:
		return nil, 0, fmt.Errorf("unexpected leading byte %q", trimmed[0])
	}
}
