package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/ferrymail/ferry/internal/models"
	"github.com/ferrymail/ferry/internal/protocol"
)

// Mutation is one recorded ApplyMutation call.
type Mutation struct {
	Kind   string
	Params map[string]any
}

// FakeClient is a scripted protocol.Client. Tests preload change pages,
// thread contents, and per-call mutation outcomes, then assert on the
// recorded calls.
type FakeClient struct {
	mu sync.Mutex

	// Pages are consumed in order by FetchChanges; once exhausted,
	// FetchChanges returns an empty final page with the last cursor.
	Pages []*protocol.ChangePage

	// Threads maps thread id to the messages FetchThread returns.
	Threads map[string][]*models.Message

	// Blobs maps blob references to attachment bytes.
	Blobs map[string][]byte

	// FetchErr, when set, is returned by the next FetchChanges call and
	// then cleared. Set protocol.ErrCursorExpired to simulate an
	// invalidated cursor.
	FetchErr error

	// MutationResults are consumed one per ApplyMutation call; a nil entry
	// means success. When exhausted, calls succeed.
	MutationResults []error

	// Recorded calls.
	Mutations    []Mutation
	FetchCursors []string

	lastCursor string
}

var _ protocol.Client = (*FakeClient)(nil)

func NewFakeClient() *FakeClient {
	return &FakeClient{
		Threads: make(map[string][]*models.Message),
		Blobs:   make(map[string][]byte),
	}
}

func (f *FakeClient) FetchChanges(_ context.Context, cursor string, _ protocol.FetchOptions) (*protocol.ChangePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.FetchCursors = append(f.FetchCursors, cursor)

	if f.FetchErr != nil {
		err := f.FetchErr
		f.FetchErr = nil
		return nil, err
	}

	if len(f.Pages) == 0 {
		return &protocol.ChangePage{NewCursor: f.lastCursor}, nil
	}

	page := f.Pages[0]
	f.Pages = f.Pages[1:]
	if page.NewCursor != "" {
		f.lastCursor = page.NewCursor
	}
	return page, nil
}

func (f *FakeClient) FetchThread(_ context.Context, threadID string) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	messages, ok := f.Threads[threadID]
	if !ok {
		return nil, nil
	}

	// Copy so callers mutating the result do not corrupt the script.
	out := make([]*models.Message, len(messages))
	copy(out, messages)
	return out, nil
}

func (f *FakeClient) ApplyMutation(_ context.Context, kind string, params map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Mutations = append(f.Mutations, Mutation{Kind: kind, Params: params})

	if len(f.MutationResults) == 0 {
		return nil
	}

	result := f.MutationResults[0]
	f.MutationResults = f.MutationResults[1:]
	return result
}

func (f *FakeClient) FetchBlob(_ context.Context, blobRef string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, ok := f.Blobs[blobRef]
	if !ok {
		return nil, fmt.Errorf("unknown blob reference %q", blobRef)
	}
	return blob, nil
}

// MutationKinds returns the kinds of all recorded mutations, in call order.
func (f *FakeClient) MutationKinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	kinds := make([]string, len(f.Mutations))
	for i, m := range f.Mutations {
		kinds[i] = m.Kind
	}
	return kinds
}
