package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) (*CaptchaStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCaptchaStore(client), mr
}

func TestCaptchaRoundTrip(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	challenge, err := store.Issue(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, challenge.ID)
	assert.Len(t, challenge.Code, captchaLength)

	ok, err := store.Verify(ctx, challenge.ID, challenge.Code)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCaptchaComparisonIsCaseInsensitive(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	challenge, err := store.Issue(ctx)
	require.NoError(t, err)

	ok, err := store.Verify(ctx, challenge.ID, strings.ToUpper(challenge.Code))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCaptchaSingleAttempt(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	challenge, err := store.Issue(ctx)
	require.NoError(t, err)

	ok, err := store.Verify(ctx, challenge.ID, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	// The wrong attempt consumed the challenge; the right answer no
	// longer works.
	ok, err = store.Verify(ctx, challenge.ID, challenge.Code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCaptchaExpires(t *testing.T) {
	store, mr := testStore(t)
	ctx := context.Background()

	challenge, err := store.Issue(ctx)
	require.NoError(t, err)

	mr.FastForward(captchaTTL + time.Second)

	ok, err := store.Verify(ctx, challenge.ID, challenge.Code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCaptchaUnknownOrEmptyInput(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	ok, err := store.Verify(ctx, "no-such-id", "abcd")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Verify(ctx, "", "")
	require.NoError(t, err)
	assert.False(t, ok)
}
