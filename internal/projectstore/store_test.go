package projectstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bondarchitect/internal/state"
)

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	s := NewFile(t.TempDir())
	ctx := context.Background()

	st := state.New("Epithelial transport", "model transepithelial potassium secretion")
	st.AppendMessage("user", st.UserRequest)
	st.CurrentNode = state.NodeRetriever
	st.Status = state.StatusPaused
	st.GeneratedCode = "import sympy"

	rec, err := s.Create(ctx, "alice", st)
	require.NoError(t, err)
	require.NotEmpty(t, rec.ThreadID)

	loaded, err := s.Load(ctx, "alice", rec.ThreadID)
	require.NoError(t, err)
	require.Equal(t, rec.State, loaded.State)
	require.Equal(t, "alice", loaded.UserID)
}

func TestFileStore_OwnershipAndNotFound(t *testing.T) {
	s := NewFile(t.TempDir())
	ctx := context.Background()

	rec, err := s.Create(ctx, "alice", state.New("p", "r"))
	require.NoError(t, err)

	_, err = s.Load(ctx, "bob", rec.ThreadID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Load(ctx, "alice", "no-such-thread")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Load(ctx, "alice", "../escape")
	require.ErrorIs(t, err, ErrInvalidID)
}

func TestFileStore_SaveBumpsLastUpdated(t *testing.T) {
	s := NewFile(t.TempDir())
	ctx := context.Background()

	st := state.New("p", "r")
	rec, err := s.Create(ctx, "alice", st)
	require.NoError(t, err)
	before := st.LastUpdated

	time.Sleep(2 * time.Millisecond)
	st.ProjectNotes = "edited"
	saved, err := s.Save(ctx, "alice", rec.ThreadID, st)
	require.NoError(t, err)
	require.Greater(t, saved.State.LastUpdated, before)

	loaded, err := s.Load(ctx, "alice", rec.ThreadID)
	require.NoError(t, err)
	require.Equal(t, "edited", loaded.State.ProjectNotes)
}

func TestFileStore_ListNewestFirst(t *testing.T) {
	s := NewFile(t.TempDir())
	ctx := context.Background()

	first, err := s.Create(ctx, "alice", state.New("first", "r1"))
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := s.Create(ctx, "alice", state.New("second", "r2"))
	require.NoError(t, err)
	_, err = s.Create(ctx, "bob", state.New("other", "r3"))
	require.NoError(t, err)

	// A later save moves first back to the top.
	time.Sleep(2 * time.Millisecond)
	_, err = s.Save(ctx, "alice", first.ThreadID, first.State)
	require.NoError(t, err)

	list, err := s.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, first.ThreadID, list[0].ThreadID)
	require.Equal(t, second.ThreadID, list[1].ThreadID)
	require.Equal(t, "first", list[0].Name)
}

func TestFileStore_DeleteIdempotent(t *testing.T) {
	s := NewFile(t.TempDir())
	ctx := context.Background()

	rec, err := s.Create(ctx, "alice", state.New("p", "r"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "alice", rec.ThreadID))
	require.NoError(t, s.Delete(ctx, "alice", rec.ThreadID))

	_, err = s.Load(ctx, "alice", rec.ThreadID)
	require.True(t, errors.Is(err, ErrNotFound))
}
