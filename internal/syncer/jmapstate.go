package syncer

import (
	"context"
	"strings"
	"time"

	"github.com/ferrymail/ferry/internal/models"
)

// jmapStateAdapter syncs accounts whose position is an opaque JMAP state
// token. The server decides token validity; a "cannot calculate changes"
// response surfaces from the client as a cursor-expired condition. State
// tokens are never compared, only replaced.
type jmapStateAdapter struct {
	adapterCore
}

const phaseJMAPEmails = "emails"

func (a *jmapStateAdapter) InitialSync(ctx context.Context, account *models.Account, lookback time.Duration, report ProgressFunc) (string, error) {
	since := time.Now().Add(-lookback)
	return a.runFeed(ctx, account, "", since, phaseJMAPEmails, normalizeJMAPMessage, report)
}

func (a *jmapStateAdapter) DeltaSync(ctx context.Context, account *models.Account, cursor string, report ProgressFunc) (string, error) {
	next, err := a.runFeed(ctx, account, cursor, time.Time{}, phaseJMAPEmails, normalizeJMAPMessage, report)
	if err != nil {
		return "", err
	}
	if next == "" {
		// The server did not advance the state; keep the one we had.
		return cursor, nil
	}
	return next, nil
}

// jmapRoleMap translates JMAP mailbox roles onto the normalized vocabulary.
var jmapRoleMap = map[string]string{
	"inbox":     models.LabelInbox,
	"sent":      models.LabelSent,
	"trash":     models.LabelTrash,
	"junk":      models.LabelSpam,
	"drafts":    models.LabelDraft,
	"archive":   models.LabelArchive,
	"flagged":   models.LabelStarred,
	"important": models.LabelImportant,
}

// normalizeJMAPMessage is the classification step for JMAP accounts. Labels
// arrive as mailbox roles (or names for role-less mailboxes) mixed with
// $-prefixed keywords per RFC 8621.
func normalizeJMAPMessage(msg *models.Message) {
	labels := make([]string, 0, len(msg.Labels))
	seen := make(map[string]struct{})
	add := func(label string) {
		if label == "" {
			return
		}
		if _, dup := seen[label]; dup {
			return
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}

	isRead, isStarred := false, false

	for _, raw := range msg.Labels {
		if strings.HasPrefix(raw, "$") {
			switch raw {
			case "$seen":
				isRead = true
			case "$flagged":
				isStarred = true
			case "$draft":
				add(models.LabelDraft)
			}
			continue
		}

		if normalized, ok := jmapRoleMap[strings.ToLower(raw)]; ok {
			add(normalized)
			continue
		}
		add(strings.ToLower(raw))
	}

	if isStarred {
		add(models.LabelStarred)
	}

	msg.Labels = labels
	msg.IsRead = isRead
	msg.IsStarred = isStarred
	msg.IsImportant = hasString(labels, models.LabelImportant)
}
