//go:build integration

package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membership-backend/internal/testutil/containers"
)

func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	s := NewRedisStore(containers.NewRedis(t), time.Minute)

	rec, err := s.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = s.Begin(ctx, "k1")
	assert.Equal(t, ErrInFlight, err)

	require.NoError(t, s.Complete(ctx, "k1", Record{Status: 200, ContentType: "application/json", Body: []byte(`{}`)}))
	rec, err = s.Begin(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 200, rec.Status)
	assert.Equal(t, []byte(`{}`), rec.Body)

	require.NoError(t, s.Abort(ctx, "k1"))
	rec, err = s.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
