package appstate_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/appstate"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_DeliversToAllSubscribers(t *testing.T) {
	b := appstate.NewBroadcaster()
	defer b.Close()

	first, unsubFirst := b.Subscribe()
	second, unsubSecond := b.Subscribe()
	defer unsubFirst()
	defer unsubSecond()

	b.Notify(appstate.Foreground)

	require.Equal(t, appstate.Foreground, <-first)
	require.Equal(t, appstate.Foreground, <-second)
}

func TestBroadcaster_UnsubscribeStopsDelivery(t *testing.T) {
	b := appstate.NewBroadcaster()
	defer b.Close()

	ch, unsubscribe := b.Subscribe()
	unsubscribe()

	_, open := <-ch
	require.False(t, open, "unsubscribe must close the channel")

	// Unsubscribing twice is harmless.
	unsubscribe()
	b.Notify(appstate.Background)
}

func TestBroadcaster_CloseClosesSubscribers(t *testing.T) {
	b := appstate.NewBroadcaster()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Close()

	_, open := <-ch
	require.False(t, open)

	// Notify and Subscribe after Close must not panic.
	b.Notify(appstate.Foreground)
	late, _ := b.Subscribe()
	_, open = <-late
	require.False(t, open)
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := appstate.NewBroadcaster()
	defer b.Close()

	_, unsubscribe := b.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			b.Notify(appstate.Foreground)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full subscriber")
	}
}

func TestFileMonitor_PublishesStateChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.state")

	monitor, err := appstate.NewFileMonitor(path)
	require.NoError(t, err)
	defer monitor.Close()

	states, unsubscribe := monitor.Subscribe()
	defer unsubscribe()

	require.NoError(t, os.WriteFile(path, []byte("background\n"), 0o600))
	requireState(t, states, appstate.Background)

	require.NoError(t, os.WriteFile(path, []byte("foreground\n"), 0o600))
	requireState(t, states, appstate.Foreground)
}

func TestFileMonitor_IgnoresUnrecognizedContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.state")

	monitor, err := appstate.NewFileMonitor(path)
	require.NoError(t, err)
	defer monitor.Close()

	states, unsubscribe := monitor.Subscribe()
	defer unsubscribe()

	require.NoError(t, os.WriteFile(path, []byte("suspended"), 0o600))

	select {
	case state, open := <-states:
		if open {
			t.Fatalf("unexpected state published: %s", state)
		}
	case <-time.After(500 * time.Millisecond):
	}
}

func TestNewFileMonitor_RequiresPath(t *testing.T) {
	_, err := appstate.NewFileMonitor("")
	require.Error(t, err)
}

func requireState(t *testing.T, states <-chan appstate.State, want appstate.State) {
	t.Helper()
	select {
	case state := <-states:
		require.Equal(t, want, state)
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
}
