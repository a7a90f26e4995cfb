package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/hkbertoson/dayssincetags/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

const (
	lastResetKey = "lastReset"
	streaksKey   = "streaks"
)

// TagStore keeps lastReset as a decimal string and streaks as a list, newest first.
type TagStore struct {
	rdb *goredis.Client
}

var _ domain.TagStore = (*TagStore)(nil)

func NewTagStore(rdb *goredis.Client) *TagStore {
	return &TagStore{rdb: rdb}
}

func (s *TagStore) Load(ctx context.Context) (domain.StoredTag, error) {
	pipe := s.rdb.Pipeline()
	lastResetCmd := pipe.Get(ctx, lastResetKey)
	streaksCmd := pipe.LRange(ctx, streaksKey, 0, domain.MaxStreaks-1)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return domain.StoredTag{}, fmt.Errorf("load tag pipeline failed: %w", err)
	}

	var stored domain.StoredTag
	raw, err := lastResetCmd.Result()
	switch {
	case errors.Is(err, goredis.Nil):
	case err != nil:
		return domain.StoredTag{}, fmt.Errorf("get %s failed: %w", lastResetKey, err)
	default:
		lastReset, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.StoredTag{}, fmt.Errorf("parse %s %q: %w", lastResetKey, raw, err)
		}
		stored.LastReset = lastReset
		stored.HasLastReset = true
	}

	rawStreaks, err := streaksCmd.Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return domain.StoredTag{}, fmt.Errorf("lrange %s failed: %w", streaksKey, err)
	}
	streaks, err := parseStreaks(rawStreaks)
	if err != nil {
		return domain.StoredTag{}, err
	}
	stored.Streaks = streaks

	return stored, nil
}

// Save replaces both keys inside one MULTI/EXEC.
func (s *TagStore) Save(ctx context.Context, status domain.TagStatus) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, lastResetKey, strconv.FormatInt(status.LastReset, 10), 0)
		pipe.Del(ctx, streaksKey)
		if len(status.Streaks) > 0 {
			pipe.RPush(ctx, streaksKey, lo.ToAnySlice(status.Streaks)...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save tag transaction failed: %w", err)
	}
	return nil
}

func (s *TagStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *TagStore) Close() error {
	return s.rdb.Close()
}

func parseStreaks(raw []string) ([]int64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	streaks := make([]int64, 0, len(raw))
	for _, v := range raw {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s entry %q: %w", streaksKey, v, err)
		}
		streaks = append(streaks, ts)
	}
	return streaks, nil
}
