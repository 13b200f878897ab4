package main

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled")
	}
}

func TestShutdownContext_SignalCancels(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctx := shutdownContext(parent, discardLogger())

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))
	waitDone(t, ctx)
	require.NoError(t, parent.Err())
}

func TestShutdownContext_FollowsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx := shutdownContext(parent, discardLogger())

	require.NoError(t, ctx.Err())

	cancel()
	waitDone(t, ctx)
}
