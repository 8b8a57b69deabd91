package actions

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrymail/ferry/internal/connectivity"
	"github.com/ferrymail/ferry/internal/db"
	"github.com/ferrymail/ferry/internal/events"
	"github.com/ferrymail/ferry/internal/models"
	"github.com/ferrymail/ferry/internal/protocol"
	"github.com/ferrymail/ferry/internal/testutil"
)

type pipelineFixture struct {
	pool     *pgxpool.Pool
	client   *testutil.FakeClient
	monitor  *connectivity.Monitor
	bus      *events.Bus
	view     *View
	pipeline *Pipeline
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	pool := testutil.NewTestDB(t)
	t.Cleanup(pool.Close)

	ctx := context.Background()
	account := &models.Account{
		ID:           "acct-1",
		EmailAddress: "user@example.com",
		Protocol:     models.ProtocolAPICursor,
	}
	require.NoError(t, db.SaveAccount(ctx, pool, account))

	client := testutil.NewFakeClient()
	monitor := connectivity.NewMonitor(true)
	bus := events.NewBus()
	view := NewView()

	clients := func(string) (protocol.Client, error) { return client, nil }
	pipeline := NewPipeline(pool, clients, monitor, bus, view, models.DefaultMaxRetries)

	return &pipelineFixture{
		pool:     pool,
		client:   client,
		monitor:  monitor,
		bus:      bus,
		view:     view,
		pipeline: pipeline,
	}
}

// seedInboxThread stores a one-message inbox thread and loads it into the
// view.
func (f *pipelineFixture) seedInboxThread(t *testing.T, threadID string, starred bool) {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	thread := &models.Thread{
		ID:             threadID,
		AccountID:      "acct-1",
		Subject:        "subject " + threadID,
		LastActivityAt: &now,
		MessageCount:   1,
		IsStarred:      starred,
		Labels:         []string{models.LabelInbox},
	}
	require.NoError(t, db.SaveThread(ctx, f.pool, thread))
	require.NoError(t, db.ReplaceThreadLabels(ctx, f.pool, "acct-1", threadID, thread.Labels))

	message := &models.Message{
		ID:          threadID + "-m1",
		ThreadID:    threadID,
		AccountID:   "acct-1",
		FromAddress: "sender@example.com",
		Subject:     thread.Subject,
		Labels:      []string{models.LabelInbox},
		IsStarred:   starred,
		ReceivedAt:  &now,
	}
	require.NoError(t, db.SaveMessage(ctx, f.pool, message))

	threads, err := db.GetThreadsByLabel(ctx, f.pool, "acct-1", models.LabelInbox, 50, 0)
	require.NoError(t, err)
	f.view.Load(threads)
}

func pendingCount(t *testing.T, pool *pgxpool.Pool) int {
	t.Helper()
	count, err := db.CountPendingOperations(context.Background(), pool, "acct-1")
	require.NoError(t, err)
	return count
}

func TestExecuteOnlineSuccess(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedInboxThread(t, "t1", false)

	result := f.pipeline.Execute(context.Background(), "acct-1", Action{Kind: KindArchive, ThreadID: "t1"})

	assert.True(t, result.Success)
	assert.False(t, result.Queued)
	require.NoError(t, result.Err)

	// Remote saw the mutation, nothing was queued.
	assert.Equal(t, []string{"archive"}, f.client.MutationKinds())
	assert.Equal(t, 0, pendingCount(t, f.pool))

	// Optimistic view: thread left the list immediately.
	assert.False(t, f.view.Contains("t1"))

	// Mirror: inbox label swapped for archive.
	labels, err := db.GetThreadLabels(context.Background(), f.pool, "acct-1", "t1")
	require.NoError(t, err)
	assert.NotContains(t, labels, models.LabelInbox)
	assert.Contains(t, labels, models.LabelArchive)
}

func TestExecuteOfflineQueues(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedInboxThread(t, "t1", false)
	f.monitor.SetOnline(false)

	result := f.pipeline.Execute(context.Background(), "acct-1", Action{Kind: KindArchive, ThreadID: "t1"})

	// Offline actions feel successful; confirmation is deferred.
	assert.True(t, result.Success)
	assert.True(t, result.Queued)

	// The thread vanished from the view and exactly one operation is queued.
	assert.False(t, f.view.Contains("t1"))
	assert.Empty(t, f.client.MutationKinds())

	ops, err := db.ListPendingOperations(context.Background(), f.pool, "acct-1")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "archive", ops[0].OperationType)
	assert.Equal(t, "t1", ops[0].ResourceID)
}

func TestExecuteRetryableFailureQueues(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedInboxThread(t, "t1", true)

	f.client.MutationResults = []error{&protocol.StatusError{Code: 503}}

	result := f.pipeline.Execute(context.Background(), "acct-1", Action{Kind: KindUnstar, ThreadID: "t1"})

	assert.True(t, result.Success)
	assert.True(t, result.Queued)

	// The optimistic state stays applied and the operation waits in the queue.
	assert.False(t, f.view.IsStarred("t1"))
	assert.Equal(t, 1, pendingCount(t, f.pool))
}

func TestExecutePermanentFailureReverts(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedInboxThread(t, "t1", false)

	f.client.MutationResults = []error{&protocol.StatusError{Code: 404}}

	result := f.pipeline.Execute(context.Background(), "acct-1", Action{Kind: KindStar, ThreadID: "t1"})

	assert.False(t, result.Success)
	assert.False(t, result.Queued)
	assert.Error(t, result.Err)

	// The star flag went back to its pre-action value and nothing queued.
	assert.False(t, f.view.IsStarred("t1"))
	assert.Equal(t, 0, pendingCount(t, f.pool))

	// The mirror row was unwound too: a rejected star must not resurface
	// from the database after a restart.
	ctx := context.Background()
	thread, err := db.GetThread(ctx, f.pool, "acct-1", "t1")
	require.NoError(t, err)
	assert.False(t, thread.IsStarred)

	messages, err := db.GetMessagesForThread(ctx, f.pool, "acct-1", "t1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.False(t, messages[0].IsStarred)
}

func TestExecutePermanentFailureRestoresMirrorLabels(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedInboxThread(t, "t1", false)

	f.client.MutationResults = []error{&protocol.StatusError{Code: 403}}

	result := f.pipeline.Execute(context.Background(), "acct-1", Action{Kind: KindArchive, ThreadID: "t1"})
	require.Error(t, result.Err)

	// The inbox/archive swap was undone in the mirror and in the view.
	assert.True(t, f.view.Contains("t1"))

	labels, err := db.GetThreadLabels(context.Background(), f.pool, "acct-1", "t1")
	require.NoError(t, err)
	assert.Contains(t, labels, models.LabelInbox)
	assert.NotContains(t, labels, models.LabelArchive)
}

func TestExecuteSendMessagePublishesSideEffects(t *testing.T) {
	f := newPipelineFixture(t)

	_, sent := f.bus.Subscribe(func(e events.Event) bool { return e.Type == events.TypeMessageSent })
	_, contacts := f.bus.Subscribe(func(e events.Event) bool { return e.Type == events.TypeContactUsed })

	action := Action{
		Kind: KindSendMessage,
		Outgoing: &Outgoing{
			To:       []string{"alice@example.com"},
			CC:       []string{"bob@example.com"},
			Subject:  "hello",
			BodyText: "hi both",
		},
	}

	result := f.pipeline.Execute(context.Background(), "acct-1", action)
	require.True(t, result.Success)

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("expected a message-sent event")
	}

	recipients := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case event := <-contacts:
			recipients[event.Payload.(string)] = true
		case <-time.After(time.Second):
			t.Fatal("expected two contact-used events")
		}
	}
	assert.True(t, recipients["alice@example.com"])
	assert.True(t, recipients["bob@example.com"])
}

func TestExecuteCreateDraftMirrorsLocally(t *testing.T) {
	f := newPipelineFixture(t)

	action := Action{
		Kind: KindCreateDraft,
		Outgoing: &Outgoing{
			To:       []string{"alice@example.com"},
			Subject:  "draft subject",
			BodyText: "draft body",
		},
	}

	result := f.pipeline.Execute(context.Background(), "acct-1", action)
	require.True(t, result.Success)

	ctx := context.Background()
	threads, err := db.GetThreadsByLabel(ctx, f.pool, "acct-1", models.LabelDraft, 10, 0)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "draft subject", threads[0].Subject)

	messages, err := db.GetMessagesForThread(ctx, f.pool, "acct-1", threads[0].ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "draft body", messages[0].BodyText)
	assert.Contains(t, messages[0].Labels, models.LabelDraft)
}

func TestExecuteRejectsMalformedActions(t *testing.T) {
	f := newPipelineFixture(t)

	tests := []struct {
		name   string
		action Action
	}{
		{name: "unknown kind", action: Action{Kind: "explode", ThreadID: "t1"}},
		{name: "missing thread id", action: Action{Kind: KindArchive}},
		{name: "label kind without label", action: Action{Kind: KindAddLabel, ThreadID: "t1"}},
		{name: "send without recipients", action: Action{Kind: KindSendMessage, Outgoing: &Outgoing{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.pipeline.Execute(context.Background(), "acct-1", tt.action)
			assert.False(t, result.Success)
			assert.Error(t, result.Err)
		})
	}

	assert.Empty(t, f.client.MutationKinds())
	assert.Equal(t, 0, pendingCount(t, f.pool))
}

func TestFetchAttachment(t *testing.T) {
	f := newPipelineFixture(t)
	f.client.Blobs["blob-1"] = []byte("attachment bytes")

	data, err := f.pipeline.FetchAttachment(context.Background(), "acct-1", "blob-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("attachment bytes"), data)

	_, err = f.pipeline.FetchAttachment(context.Background(), "acct-1", "missing")
	assert.Error(t, err)
}
