package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	"github.com/xpanvictor/avatarchat/internal/types"
	"github.com/xpanvictor/avatarchat/pkg/utils"
)

var ErrArchiveDisabled = errors.New("transcript archive disabled")

// Repository mirrors finished conversation turns for later inspection.
// The pipeline only ever writes to it.
type Repository interface {
	RecordTurn(ctx context.Context, sessionID string, turns ...types.Turn) error
	Transcript(ctx context.Context, sessionID string, start, end int64) ([]types.Turn, error)
	// Sessions lists archived session ids, most recently active first.
	Sessions(ctx context.Context, limit int64) ([]string, error)
}

type redisRepo struct {
	rc  *redis.Client
	ttl time.Duration
}

func NewRedisRepo(rc *redis.Client, ttl time.Duration) Repository {
	return &redisRepo{rc: rc, ttl: ttl}
}

func (r *redisRepo) RecordTurn(ctx context.Context, sessionID string, turns ...types.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	vals := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		var e TurnEntity
		e.FromDomain(sessionID, t)
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("can't marshal turn: %w", err)
		}
		vals = append(vals, data)
	}

	key := SessionTurnsKey(sessionID)
	last := turns[len(turns)-1].Timestamp
	_, err := r.rc.WithContext(ctx).TxPipelined(func(p redis.Pipeliner) error {
		p.RPush(key, vals...)
		p.ZAdd(archivedSessionsKey, redis.Z{Member: sessionID, Score: float64(last.Unix())})
		if r.ttl > 0 {
			p.Expire(key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return utils.XError{Reason: "archiving turns for " + sessionID, Meta: err}.ToError()
	}
	return nil
}

func (r *redisRepo) Transcript(ctx context.Context, sessionID string, start, end int64) ([]types.Turn, error) {
	raw, err := r.rc.WithContext(ctx).LRange(SessionTurnsKey(sessionID), start, end).Result()
	if err != nil {
		return nil, utils.XError{Reason: "reading transcript", Meta: err}.ToError()
	}
	turns := make([]types.Turn, 0, len(raw))
	for _, s := range raw {
		var e TurnEntity
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			continue
		}
		turns = append(turns, e.ToDomain())
	}
	return turns, nil
}

func (r *redisRepo) Sessions(ctx context.Context, limit int64) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.rc.WithContext(ctx).ZRevRange(archivedSessionsKey, 0, limit-1).Result()
}

// nopRepo stands in when archive.enabled is false.
type nopRepo struct{}

func NewNop() Repository { return nopRepo{} }

func (nopRepo) RecordTurn(ctx context.Context, sessionID string, turns ...types.Turn) error {
	return nil
}

func (nopRepo) Transcript(ctx context.Context, sessionID string, start, end int64) ([]types.Turn, error) {
	return nil, ErrArchiveDisabled
}

func (nopRepo) Sessions(ctx context.Context, limit int64) ([]string, error) {
	return nil, ErrArchiveDisabled
}
