package actions

import (
	"context"

	"github.com/ferrymail/ferry/internal/protocol"
)

// Dispatch executes one action against the remote service. The pipeline and
// the offline queue processor share this path, so a replayed operation hits
// the remote exactly like a live one.
func Dispatch(ctx context.Context, client protocol.Client, a Action) error {
	return client.ApplyMutation(ctx, string(a.Kind), a.Params())
}
