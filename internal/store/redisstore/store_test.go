package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

type pref struct {
	Provider string `json:"provider"`
	Memory   bool   `json:"memory"`
}

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewStore(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestPreferenceRoundTrip(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	var got pref
	found, err := s.GetPreference(ctx, 7, &got)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.SetPreference(ctx, 7, pref{Provider: "ollama", Memory: true}, time.Minute))
	require.True(t, mr.Exists("ai_pref:7"))

	found, err = s.GetPreference(ctx, 7, &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, pref{Provider: "ollama", Memory: true}, got)

	mr.FastForward(2 * time.Minute)
	found, err = s.GetPreference(ctx, 7, &got)
	require.NoError(t, err)
	require.False(t, found)
}

func TestDeletePreference(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetPreference(ctx, 1, pref{Provider: "google"}, 0))
	require.NoError(t, s.DeletePreference(ctx, 1))
	require.False(t, mr.Exists("ai_pref:1"))
}

func TestGetJSONCorruptValue(t *testing.T) {
	s, mr := newTestStore(t)
	require.NoError(t, mr.Set("ai_pref:3", "{not json"))

	var got pref
	_, err := s.GetPreference(context.Background(), 3, &got)
	require.Error(t, err)
}
