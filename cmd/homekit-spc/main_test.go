package main

import (
	"context"
	"fmt"
	"testing"

	client "github.com/caarlos0/homekit-spc"
	"github.com/stretchr/testify/require"
)

type refreshFunc func(ctx context.Context) (client.Snapshot, error)

func (f refreshFunc) Refresh(ctx context.Context) (client.Snapshot, error) {
	return f(ctx)
}

func TestInitialSnapshot(t *testing.T) {
	t.Run("retries", func(t *testing.T) {
		var calls int
		snap, err := initialSnapshot(context.Background(), refreshFunc(func(context.Context) (client.Snapshot, error) {
			calls++
			if calls < 2 {
				return client.Snapshot{}, fmt.Errorf("%w: reset", client.ErrConnection)
			}
			return testSnapshot(client.AreaArmed), nil
		}))
		require.NoError(t, err)
		require.Equal(t, 2, calls)
		require.Equal(t, client.AreaArmed, snap.Area.Status)
	})

	t.Run("wrong credentials", func(t *testing.T) {
		var calls int
		_, err := initialSnapshot(context.Background(), refreshFunc(func(context.Context) (client.Snapshot, error) {
			calls++
			return client.Snapshot{}, fmt.Errorf("%w: access denied", client.ErrAuth)
		}))
		require.ErrorIs(t, err, client.ErrAuth)
		require.Equal(t, 1, calls)
	})
}
