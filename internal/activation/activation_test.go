package activation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/paygate-bot/store"
	"github.com/BatmanBruc/paygate-bot/types"
)

func TestActivateAndDeactivate(t *testing.T) {
	ledger := store.NewMemoryActivationStore()
	a := New(ledger, nil)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a.now = func() time.Time { return now }
	ctx := context.Background()

	act, err := a.Activate(ctx, "user-1", "+15551234567", types.Benefit{Minutes: 60})
	require.NoError(t, err)
	require.NotNil(t, act.EndsAt)
	assert.Equal(t, now.Add(time.Hour), *act.EndsAt)

	require.NoError(t, a.Deactivate(ctx, "user-1"))
	list := ledger.Activations("user-1")
	require.Len(t, list, 1)
	require.NotNil(t, list[0].StoppedAt)
	assert.Equal(t, now, *list[0].StoppedAt)

	require.NoError(t, a.Deactivate(ctx, "user-2"))
}

func TestActivate_Lifetime(t *testing.T) {
	a := New(store.NewMemoryActivationStore(), nil)
	act, err := a.Activate(context.Background(), "user-1", "5551234567", types.Benefit{Lifetime: true})
	require.NoError(t, err)
	assert.Nil(t, act.EndsAt)
}

func TestActivate_Rejects(t *testing.T) {
	a := New(store.NewMemoryActivationStore(), nil)
	_, err := a.Activate(context.Background(), "user-1", "", types.Benefit{Minutes: 20})
	assert.ErrorIs(t, err, types.ErrInvalidTarget)

	_, err = a.Activate(context.Background(), "user-1", "5551234567", types.Benefit{})
	assert.Error(t, err)
}
