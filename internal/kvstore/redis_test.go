package kvstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	s := NewRedisStore(client)

	t.Run("set with ttl", func(t *testing.T) {
		mock.ExpectSet("register:a@b.c", []byte("payload"), 8*time.Minute).SetVal("OK")
		assert.NoError(t, s.Set(ctx, "register:a@b.c", []byte("payload"), 8*time.Minute))
	})

	t.Run("get hit", func(t *testing.T) {
		mock.ExpectGet("register:a@b.c").SetVal("payload")
		got, err := s.Get(ctx, "register:a@b.c")
		assert.NoError(t, err)
		assert.Equal(t, "payload", string(got))
	})

	t.Run("get miss maps to ErrNotFound", func(t *testing.T) {
		mock.ExpectGet("register:gone@b.c").RedisNil()
		_, err := s.Get(ctx, "register:gone@b.c")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("get failure is wrapped", func(t *testing.T) {
		mock.ExpectGet("k").SetErr(errors.New("connection refused"))
		_, err := s.Get(ctx, "k")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		mock.ExpectDel("register:a@b.c").SetVal(1)
		assert.NoError(t, s.Delete(ctx, "register:a@b.c"))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
