package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrymail/ferry/internal/db"
	"github.com/ferrymail/ferry/internal/events"
	"github.com/ferrymail/ferry/internal/mirror"
	"github.com/ferrymail/ferry/internal/models"
	"github.com/ferrymail/ferry/internal/protocol"
	"github.com/ferrymail/ferry/internal/testutil"
)

func TestAPICursorAdapterDeltaSync(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	account := &models.Account{
		ID:           "acct-1",
		EmailAddress: "user@example.com",
		Protocol:     models.ProtocolAPICursor,
	}
	require.NoError(t, db.SaveAccount(ctx, pool, account))

	received := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)

	fake := testutil.NewFakeClient()
	fake.Pages = []*protocol.ChangePage{
		{
			Changes: []protocol.Change{
				{Kind: protocol.ChangeAdded, ThreadID: "t1", MessageID: "m1"},
				// Duplicate change for the same thread must not trigger a
				// second concurrent upsert.
				{Kind: protocol.ChangeUpdated, ThreadID: "t1"},
			},
			NewCursor: "300",
		},
	}
	fake.Threads["t1"] = []*models.Message{
		{
			ID:          "m1",
			ThreadID:    "t1",
			AccountID:   "acct-1",
			FromAddress: "sender@example.com",
			Subject:     "hello",
			BodyText:    "hello there",
			Labels:      []string{"INBOX", "UNREAD"},
			ReceivedAt:  &received,
		},
	}

	bus := events.NewBus()
	_, arrivals := bus.Subscribe(func(e events.Event) bool {
		return e.Type == events.TypeNewInboxArrival
	})

	upserter := mirror.NewUpserter(pool, nil)

	adapter, err := NewAdapter(models.ProtocolAPICursor, fake, upserter, bus, 2)
	require.NoError(t, err)

	var sawProgress bool
	cursor, err := adapter.DeltaSync(ctx, account, "100", func(phase string, current, total int) {
		sawProgress = true
		assert.Equal(t, "messages", phase)
		assert.LessOrEqual(t, current, total)
	})
	require.NoError(t, err)

	// Cursor advances monotonically to the page's cursor.
	assert.Equal(t, "300", cursor)
	assert.True(t, sawProgress)

	// The thread landed in the mirror, normalized.
	thread, err := db.GetThread(ctx, pool, "acct-1", "t1")
	require.NoError(t, err)
	assert.False(t, thread.IsRead)
	assert.Contains(t, thread.Labels, models.LabelInbox)
	assert.Equal(t, 1, thread.MessageCount)

	// The new unread inbox message was announced.
	select {
	case event := <-arrivals:
		payload, ok := event.Payload.(map[string]string)
		require.True(t, ok)
		assert.Equal(t, "t1", payload["thread_id"])
		assert.Equal(t, "m1", payload["message_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("expected a new-inbox-arrival event")
	}
}

func TestAPICursorAdapterKeepsLargerStoredCursor(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	account := &models.Account{
		ID:           "acct-2",
		EmailAddress: "user2@example.com",
		Protocol:     models.ProtocolAPICursor,
	}
	require.NoError(t, db.SaveAccount(ctx, pool, account))

	fake := testutil.NewFakeClient()
	fake.Pages = []*protocol.ChangePage{{NewCursor: "150"}}

	adapter, err := NewAdapter(models.ProtocolAPICursor, fake, mirror.NewUpserter(pool, nil), events.NewBus(), 2)
	require.NoError(t, err)

	cursor, err := adapter.DeltaSync(ctx, account, "200", nil)
	require.NoError(t, err)
	assert.Equal(t, "200", cursor)
}

func TestIMAPAdapterExpiresUnparseableCursor(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	account := &models.Account{
		ID:           "acct-3",
		EmailAddress: "user3@example.com",
		Protocol:     models.ProtocolIMAP,
	}

	adapter, err := NewAdapter(models.ProtocolIMAP, testutil.NewFakeClient(), mirror.NewUpserter(pool, nil), events.NewBus(), 2)
	require.NoError(t, err)

	_, err = adapter.DeltaSync(context.Background(), account, "not-a-cursor", nil)
	assert.ErrorIs(t, err, protocol.ErrCursorExpired)
}

func TestJMAPAdapterKeepsCursorWhenStateDoesNotAdvance(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	account := &models.Account{
		ID:           "acct-4",
		EmailAddress: "user4@example.com",
		Protocol:     models.ProtocolJMAP,
	}

	fake := testutil.NewFakeClient()
	fake.Pages = []*protocol.ChangePage{{NewCursor: ""}}

	adapter, err := NewAdapter(models.ProtocolJMAP, fake, mirror.NewUpserter(pool, nil), events.NewBus(), 2)
	require.NoError(t, err)

	cursor, err := adapter.DeltaSync(context.Background(), account, "state-7", nil)
	require.NoError(t, err)
	assert.Equal(t, "state-7", cursor)
}
