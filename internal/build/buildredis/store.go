// Package buildredis stores build records in Redis hashes.
//
// A build lives in two hashes: build:<id> holds its fields and
// build:<id>:timings maps event names to RFC 3339 timestamps.
package buildredis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/k11v/pblbuild/internal/build"
)

var _ build.Store = (*Store)(nil)

// Hash fields of build:<id>.
const (
	fieldID         = "id"
	fieldFiles      = "files"
	fieldSDKVersion = "sdk_version"
	fieldAppName    = "app_name"
)

// setFieldScript sets a hash field only if the hash exists.
var setFieldScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// appendTimingScript sets a timing only if the build exists and the timing doesn't.
var appendTimingScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSETNX", KEYS[2], ARGV[1], ARGV[2])
return 1
`)

// createBuildScript writes a build and its timings only if the build doesn't exist.
// ARGV[1] is the number of field/value pairs that follow,
// and the rest of ARGV holds event/time pairs.
var createBuildScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
local n = tonumber(ARGV[1])
local fields = {}
local timings = {}
for i = 2, 1 + 2 * n do
	fields[#fields + 1] = ARGV[i]
end
for i = 2 + 2 * n, #ARGV do
	timings[#timings + 1] = ARGV[i]
end
redis.call("HSET", KEYS[1], unpack(fields))
if #timings > 0 then
	redis.call("HSET", KEYS[2], unpack(timings))
end
return 1
`)

type Store struct {
	client redis.UniversalClient // required
}

func NewStore(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// NewClient parses a redis:// URL and returns a client for it.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func buildKey(id uuid.UUID) string {
	return "build:" + id.String()
}

func timingsKey(id uuid.UUID) string {
	return "build:" + id.String() + ":timings"
}

// CreateBuild implements build.Store.
func (s *Store) CreateBuild(ctx context.Context, b *build.Build) error {
	files, err := json.Marshal(b.Files)
	if err != nil {
		return fmt.Errorf("create build: %w", err)
	}

	fields := []any{
		fieldID, b.ID.String(),
		string(build.FieldStep), string(b.Step),
		string(build.FieldState), string(b.State),
		string(build.FieldError), b.Error,
		fieldFiles, string(files),
		fieldSDKVersion, b.SDKVersion,
		fieldAppName, b.AppName,
	}
	args := append([]any{len(fields) / 2}, fields...)
	for event, t := range b.Timings {
		args = append(args, event, formatTime(t))
	}

	keys := []string{buildKey(b.ID), timingsKey(b.ID)}
	n, err := createBuildScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("create build: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("create build: %w", build.ErrAlreadyExists)
	}

	return nil
}

// GetBuild implements build.Store.
func (s *Store) GetBuild(ctx context.Context, id uuid.UUID) (*build.Build, error) {
	var fieldsCmd, timingsCmd *redis.MapStringStringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fieldsCmd = pipe.HGetAll(ctx, buildKey(id))
		timingsCmd = pipe.HGetAll(ctx, timingsKey(id))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get build: %w", err)
	}

	fields := fieldsCmd.Val()
	if len(fields) == 0 {
		return nil, build.ErrNotFound
	}

	b := &build.Build{
		ID:         id,
		Step:       build.Step(fields[string(build.FieldStep)]),
		State:      build.State(fields[string(build.FieldState)]),
		Error:      fields[string(build.FieldError)],
		Timings:    build.Timings{},
		SDKVersion: fields[fieldSDKVersion],
		AppName:    fields[fieldAppName],
	}
	if raw := fields[fieldFiles]; raw != "" {
		if err = json.Unmarshal([]byte(raw), &b.Files); err != nil {
			return nil, fmt.Errorf("get build: files: %w", err)
		}
	}
	for event, raw := range timingsCmd.Val() {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("get build: timing %q: %w", event, err)
		}
		b.Timings[event] = t
	}

	return b, nil
}

// SetField implements build.Store.
func (s *Store) SetField(ctx context.Context, id uuid.UUID, field build.Field, value string) error {
	switch field {
	case build.FieldStep, build.FieldState, build.FieldError:
	default:
		return fmt.Errorf("set field: unknown field %q", field)
	}

	n, err := setFieldScript.Run(ctx, s.client, []string{buildKey(id)}, string(field), value).Int()
	if err != nil {
		return fmt.Errorf("set field: %w", err)
	}
	if n == 0 {
		return build.ErrNotFound
	}

	return nil
}

// AppendTiming implements build.Store.
func (s *Store) AppendTiming(ctx context.Context, id uuid.UUID, event string, t time.Time) error {
	keys := []string{buildKey(id), timingsKey(id)}
	n, err := appendTimingScript.Run(ctx, s.client, keys, event, formatTime(t)).Int()
	if err != nil {
		return fmt.Errorf("append timing: %w", err)
	}
	if n == 0 {
		return build.ErrNotFound
	}

	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
