package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

// DeadLetterEpoch is the reference instant used by the repository suite.
var DeadLetterEpoch = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

// NewFailedCommand builds a valid record that fails at DeadLetterEpoch+offset
// and lives for ttl.
func NewFailedCommand(id, tenant, commandType string, offset, ttl time.Duration) *domain.FailedCommand {
	first := DeadLetterEpoch.Add(offset)
	return &domain.FailedCommand{
		ID:               id,
		TenantID:         tenant,
		CommandType:      commandType,
		CommandData:      fmt.Sprintf(`{"request_id":%q}`, id),
		AttemptNumber:    1,
		LastError:        "connection refused",
		FirstFailureTime: first,
		LastFailureTime:  first,
		ExpiresAt:        first.Add(ttl),
	}
}

// RunDeadLetterRepositoryTests exercises the domain.DeadLetterRepository
// contract against repositories produced by newRepo. Each subtest gets a
// fresh repository.
func RunDeadLetterRepositoryTests(t *testing.T, newRepo func(t *testing.T) domain.DeadLetterRepository) {
	ctx := context.Background()
	now := DeadLetterEpoch.Add(time.Minute)

	t.Run("enqueue and get", func(t *testing.T) {
		repo := newRepo(t)
		in := NewFailedCommand("dl-1", "acme", "CreateUser", 0, time.Hour)
		in.AttemptNumber = 4

		out, err := repo.Enqueue(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, "dl-1", out.ID)

		got, err := repo.Get(ctx, "dl-1", now)
		require.NoError(t, err)
		assert.Equal(t, "acme", got.TenantID)
		assert.Equal(t, "CreateUser", got.CommandType)
		assert.Equal(t, in.CommandData, got.CommandData)
		assert.Equal(t, 4, got.AttemptNumber)
		assert.Equal(t, "connection refused", got.LastError)
		assert.True(t, got.FirstFailureTime.Equal(in.FirstFailureTime))
		assert.True(t, got.ExpiresAt.Equal(in.ExpiresAt))
	})

	t.Run("enqueue assigns id", func(t *testing.T) {
		repo := newRepo(t)
		out, err := repo.Enqueue(ctx, NewFailedCommand("", "", "CreateUser", 0, time.Hour))
		require.NoError(t, err)
		assert.NotEmpty(t, out.ID)
	})

	t.Run("enqueue rejects invalid and duplicate", func(t *testing.T) {
		repo := newRepo(t)
		bad := NewFailedCommand("dl-1", "", "", 0, time.Hour)
		_, err := repo.Enqueue(ctx, bad)
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)

		_, err = repo.Enqueue(ctx, NewFailedCommand("dl-1", "", "CreateUser", 0, time.Hour))
		require.NoError(t, err)
		_, err = repo.Enqueue(ctx, NewFailedCommand("dl-1", "", "CreateUser", 0, time.Hour))
		var cerr *domain.ConflictError
		assert.ErrorAs(t, err, &cerr)
	})

	t.Run("get missing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Get(ctx, "nope", now)
		var nf *domain.NotFoundError
		assert.ErrorAs(t, err, &nf)
	})

	t.Run("expired entries are absent", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Enqueue(ctx, NewFailedCommand("short", "", "CreateUser", 0, 30*time.Second))
		require.NoError(t, err)
		_, err = repo.Enqueue(ctx, NewFailedCommand("long", "", "CreateUser", 0, time.Hour))
		require.NoError(t, err)

		_, err = repo.Get(ctx, "short", now)
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)

		page, total, err := repo.Peek(ctx, domain.DeadLetterFilter{}, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, page, 1)
		assert.Equal(t, "long", page[0].ID)

		_, err = repo.RecordAttempt(ctx, "short", "x", now)
		assert.ErrorAs(t, err, &nf)
	})

	t.Run("peek orders oldest first and filters", func(t *testing.T) {
		repo := newRepo(t)
		for _, c := range []*domain.FailedCommand{
			NewFailedCommand("c", "acme", "CreateGroup", 3*time.Second, time.Hour),
			NewFailedCommand("a", "acme", "CreateUser", 1*time.Second, time.Hour),
			NewFailedCommand("b", "globex", "CreateUser", 2*time.Second, time.Hour),
		} {
			_, err := repo.Enqueue(ctx, c)
			require.NoError(t, err)
		}

		page, total, err := repo.Peek(ctx, domain.DeadLetterFilter{}, now)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Equal(t, []string{"a", "b", "c"}, ids(page))

		acme := "acme"
		page, total, err = repo.Peek(ctx, domain.DeadLetterFilter{TenantID: &acme}, now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Equal(t, []string{"a", "c"}, ids(page))

		createUser := "CreateUser"
		page, _, err = repo.Peek(ctx, domain.DeadLetterFilter{CommandType: &createUser}, now)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(page))

		page, total, err = repo.Peek(ctx, domain.DeadLetterFilter{
			Page: domain.PageRequest{Size: 1, After: domain.Cursor{Position: 1}},
		}, now)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Equal(t, []string{"b"}, ids(page))

		page, _, err = repo.Peek(ctx, domain.DeadLetterFilter{}, now)
		require.NoError(t, err)
		assert.Len(t, page, 3, "peek must not remove entries")
	})

	t.Run("dequeue removes returned entries", func(t *testing.T) {
		repo := newRepo(t)
		for i, tenant := range []string{"acme", "globex", "acme"} {
			_, err := repo.Enqueue(ctx, NewFailedCommand(fmt.Sprintf("d%d", i), tenant, "CreateUser", time.Duration(i)*time.Second, time.Hour))
			require.NoError(t, err)
		}

		acme := "acme"
		got, err := repo.Dequeue(ctx, domain.DeadLetterFilter{TenantID: &acme}, now)
		require.NoError(t, err)
		assert.Equal(t, []string{"d0", "d2"}, ids(got))

		rest, total, err := repo.Peek(ctx, domain.DeadLetterFilter{}, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, []string{"d1"}, ids(rest))
	})

	t.Run("record attempt", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Enqueue(ctx, NewFailedCommand("dl-1", "", "CreateUser", 0, time.Hour))
		require.NoError(t, err)

		at := now.Add(5 * time.Second)
		got, err := repo.RecordAttempt(ctx, "dl-1", "still down", at)
		require.NoError(t, err)
		assert.Equal(t, 2, got.AttemptNumber)
		assert.Equal(t, "still down", got.LastError)
		assert.True(t, got.LastFailureTime.Equal(at))

		again, err := repo.Get(ctx, "dl-1", at)
		require.NoError(t, err)
		assert.Equal(t, 2, again.AttemptNumber)
		assert.True(t, again.FirstFailureTime.Equal(DeadLetterEpoch))
	})

	t.Run("remove", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Enqueue(ctx, NewFailedCommand("dl-1", "", "CreateUser", 0, time.Hour))
		require.NoError(t, err)

		require.NoError(t, repo.Remove(ctx, "dl-1"))
		var nf *domain.NotFoundError
		assert.ErrorAs(t, repo.Remove(ctx, "dl-1"), &nf)
		_, err = repo.Get(ctx, "dl-1", now)
		assert.ErrorAs(t, err, &nf)
	})

	t.Run("purge expired", func(t *testing.T) {
		repo := newRepo(t)
		for _, c := range []*domain.FailedCommand{
			NewFailedCommand("e1", "", "CreateUser", 0, 10*time.Second),
			NewFailedCommand("e2", "", "CreateUser", 0, 20*time.Second),
			NewFailedCommand("keep", "", "CreateUser", 0, time.Hour),
		} {
			_, err := repo.Enqueue(ctx, c)
			require.NoError(t, err)
		}

		n, err := repo.PurgeExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = repo.PurgeExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		_, err = repo.Get(ctx, "keep", now)
		assert.NoError(t, err)
	})
}

func ids(cs []domain.FailedCommand) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}
