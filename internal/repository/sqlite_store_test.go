package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"nsfas-assistant/internal/domain"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "")
	require.Error(t, err)
}

func TestSQLiteStore_Tickets(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.AppendTicket(ctx, sampleTicket("TKT-20240301093000")))
	err := s.AppendTicket(ctx, sampleTicket("TKT-20240301093000"))
	require.Error(t, err, "ticket numbers are unique")

	got, err := s.PendingTickets(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, sampleTicket("TKT-20240301093000"), got[0])
}

func TestSQLiteStore_SaveSessionReplacesTurns(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, "sess-1", sampleTurns()))
	got, err := s.SessionTurns(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, sampleTurns(), got)

	require.NoError(t, s.SaveSession(ctx, "sess-1", sampleTurns()[1:]))
	got, err = s.SessionTurns(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, domain.OutcomeIntentMatched, got[0].Outcome)

	none, err := s.SessionTurns(ctx, "other")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestSQLiteStore_SaveSessionRequiresID(t *testing.T) {
	s := openTestSQLite(t)
	require.Error(t, s.SaveSession(context.Background(), "", sampleTurns()))
}
