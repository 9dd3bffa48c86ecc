package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStore_NewAndGet(t *testing.T) {
	s := NewStore(time.Hour)

	id, st, err := s.New(time.UTC)
	require.NoError(t, err)
	require.Len(t, id, 32)
	require.False(t, st.LoggedIn)
	require.NotZero(t, st.CalYear)
	require.Equal(t, st.SelectedDate.Year(), st.CalYear)

	got, ok := s.Get(id)
	require.True(t, ok)
	require.Equal(t, st, got)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := NewStore(time.Hour)
	id, _, err := s.New(time.UTC)
	require.NoError(t, err)

	st, ok := s.Get(id)
	require.True(t, ok)
	st.CalMonth = 1
	st.Notice = "local mutation"

	// Mutating the returned copy must not affect the stored state until Put.
	again, ok := s.Get(id)
	require.True(t, ok)
	require.Empty(t, again.Notice)

	s.Put(id, st)
	after, ok := s.Get(id)
	require.True(t, ok)
	require.Equal(t, "local mutation", after.Notice)
}

func TestStore_PutUnknownIDIgnored(t *testing.T) {
	s := NewStore(time.Hour)
	s.Put("nope", State{Notice: "x"})
	_, ok := s.Get("nope")
	require.False(t, ok)
}

func TestStore_TTLExpiry(t *testing.T) {
	s := NewStore(time.Hour)
	id, _, err := s.New(time.UTC)
	require.NoError(t, err)

	// Age the entry past the TTL directly.
	s.mu.Lock()
	s.entries[id].lastAccess = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()

	_, ok := s.Get(id)
	require.False(t, ok)
	require.Equal(t, 0, s.Len())
}

func TestStore_Sweep(t *testing.T) {
	s := NewStore(time.Hour)

	fresh, _, err := s.New(time.UTC)
	require.NoError(t, err)
	stale, _, err := s.New(time.UTC)
	require.NoError(t, err)

	s.mu.Lock()
	s.entries[stale].lastAccess = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()

	require.Equal(t, 1, s.Sweep())
	_, ok := s.Get(fresh)
	require.True(t, ok)
	_, ok = s.Get(stale)
	require.False(t, ok)
}
