package archive

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xpanvictor/avatarchat/internal/config"
	"github.com/xpanvictor/avatarchat/internal/database"
	"github.com/xpanvictor/avatarchat/internal/types"
)

func TestTurnEntity(t *testing.T) {
	ts := time.UnixMilli(1735732800123)
	var e TurnEntity
	e.FromDomain("s1", types.Turn{Role: types.RoleUser, Text: "hej", Timestamp: ts})

	assert.Equal(t, "s1", e.SessionID)
	assert.Equal(t, int64(1735732800123), e.Timestamp)
	got := e.ToDomain()
	assert.Equal(t, types.RoleUser, got.Role)
	assert.True(t, ts.Equal(got.Timestamp))
	assert.Equal(t, "session:s1:turns", SessionTurnsKey("s1"))
}

func TestNop(t *testing.T) {
	r := NewNop()
	assert.NoError(t, r.RecordTurn(context.Background(), "s", types.NewTurn(types.RoleUser, "x")))
	_, err := r.Transcript(context.Background(), "s", 0, -1)
	assert.ErrorIs(t, err, ErrArchiveDisabled)
}

// Runs against a live server: AVATARCHAT_TEST_REDIS=localhost:6379
func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("AVATARCHAT_TEST_REDIS")
	if addr == "" {
		t.Skip("AVATARCHAT_TEST_REDIS not set")
	}
	rc, err := database.NewRedis(config.RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer rc.Close()

	repo := NewRedisRepo(rc, time.Minute)
	id := uuid.NewString()
	defer rc.Del(SessionTurnsKey(id))

	require.NoError(t, repo.RecordTurn(context.Background(), id,
		types.NewTurn(types.RoleUser, "ping"),
		types.NewTurn(types.RoleAssistant, "pong"),
	))
	turns, err := repo.Transcript(context.Background(), id, 0, -1)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "pong", turns[1].Text)

	ids, err := repo.Sessions(context.Background(), 10)
	require.NoError(t, err)
	assert.Contains(t, ids, id)
}
