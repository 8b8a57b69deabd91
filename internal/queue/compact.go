// Package queue drains the durable pending-operation table once
// connectivity returns: compaction first, then creation-order replay with
// per-operation backoff and terminal failure marking.
package queue

import (
	"encoding/json"

	"github.com/ferrymail/ferry/internal/actions"
	"github.com/ferrymail/ferry/internal/models"
)

// terminalKinds end a thread's useful life in the mailbox: once one is
// queued, earlier queued mutations of the same thread no longer matter.
var terminalKinds = map[string]struct{}{
	string(actions.KindTrash):    {},
	string(actions.KindDelete):   {},
	string(actions.KindMarkSpam): {},
}

// opposites maps each flag kind to the kind it cancels. The later of an
// opposing pair wins.
var opposites = map[string]string{
	string(actions.KindMarkRead):    string(actions.KindMarkUnread),
	string(actions.KindMarkUnread):  string(actions.KindMarkRead),
	string(actions.KindStar):        string(actions.KindUnstar),
	string(actions.KindUnstar):      string(actions.KindStar),
	string(actions.KindMarkSpam):    string(actions.KindMarkNotSpam),
	string(actions.KindMarkNotSpam): string(actions.KindMarkSpam),
}

// Compact collapses redundant queued operations before a replay pass. Input
// must be in creation order. It returns the operations to replay, still in
// creation order, and the superseded ones to delete without replaying.
//
// Rules, applied per (account, resource):
//   - trash, delete, and mark-spam supersede every earlier queued mutation
//     of that resource
//   - the later of an opposing flag pair (read/unread, star/unstar,
//     spam/not-spam) supersedes the earlier
//   - an exact repeat of an idempotent kind (same label or folder where one
//     applies) supersedes the earlier occurrence
//   - delete-draft supersedes earlier draft edits; when the draft's
//     create is itself still queued, the create and the delete annihilate
//   - a later update-draft supersedes an earlier one
//   - nothing supersedes send-message
func Compact(ops []*models.PendingOperation) (keep, dropped []*models.PendingOperation) {
	kept := make([]*models.PendingOperation, 0, len(ops))

	for _, op := range ops {
		if op.OperationType == string(actions.KindDeleteDraft) {
			var annihilated bool
			kept, dropped, annihilated = dropDraftEdits(kept, dropped, op)
			if annihilated {
				dropped = append(dropped, op)
				continue
			}
			kept = append(kept, op)
			continue
		}

		next := kept[:0]
		for _, earlier := range kept {
			if supersedes(op, earlier) {
				dropped = append(dropped, earlier)
				continue
			}
			next = append(next, earlier)
		}
		kept = append(next, op)
	}

	return kept, dropped
}

// dropDraftEdits removes queued edits of the draft a delete targets. The
// returned flag is true when a queued create was among them, meaning the
// draft never reached the remote and the delete has nothing to delete.
func dropDraftEdits(kept, dropped []*models.PendingOperation, del *models.PendingOperation) ([]*models.PendingOperation, []*models.PendingOperation, bool) {
	annihilated := false
	next := kept[:0]

	for _, earlier := range kept {
		if !sameResource(del, earlier) {
			next = append(next, earlier)
			continue
		}
		switch earlier.OperationType {
		case string(actions.KindCreateDraft):
			annihilated = true
			dropped = append(dropped, earlier)
		case string(actions.KindUpdateDraft):
			dropped = append(dropped, earlier)
		default:
			next = append(next, earlier)
		}
	}

	return next, dropped, annihilated
}

func supersedes(later, earlier *models.PendingOperation) bool {
	if !sameResource(later, earlier) {
		return false
	}
	if earlier.OperationType == string(actions.KindSendMessage) {
		return false
	}

	if _, terminal := terminalKinds[later.OperationType]; terminal {
		switch earlier.OperationType {
		case string(actions.KindCreateDraft), string(actions.KindUpdateDraft), string(actions.KindDeleteDraft):
			return false
		}
		return true
	}

	if opposites[later.OperationType] == earlier.OperationType {
		return true
	}

	if later.OperationType == earlier.OperationType {
		switch later.OperationType {
		case string(actions.KindAddLabel), string(actions.KindRemoveLabel):
			return opLabel(later) == opLabel(earlier)
		case string(actions.KindMoveToFolder):
			return true
		case string(actions.KindUpdateDraft):
			return true
		case string(actions.KindArchive), string(actions.KindMarkRead), string(actions.KindMarkUnread),
			string(actions.KindStar), string(actions.KindUnstar),
			string(actions.KindMarkSpam), string(actions.KindMarkNotSpam):
			return true
		}
	}

	// Opposing label edits on the same label: later wins.
	if (later.OperationType == string(actions.KindAddLabel) && earlier.OperationType == string(actions.KindRemoveLabel)) ||
		(later.OperationType == string(actions.KindRemoveLabel) && earlier.OperationType == string(actions.KindAddLabel)) {
		return opLabel(later) == opLabel(earlier)
	}

	return false
}

func sameResource(a, b *models.PendingOperation) bool {
	return a.AccountID == b.AccountID && a.ResourceID == b.ResourceID && a.ResourceID != ""
}

func opLabel(op *models.PendingOperation) string {
	var payload struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal(op.Params, &payload); err != nil {
		return ""
	}
	return payload.Label
}
