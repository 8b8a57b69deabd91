package syncer

import (
	"context"
	"strings"
	"time"

	"github.com/ferrymail/ferry/internal/models"
)

// apiCursorAdapter syncs accounts whose change feed is keyed by an opaque
// numeric history cursor (Gmail-style). The stored cursor is kept monotonic
// under unbounded-integer comparison because the remote hands out ids beyond
// the safe integer range.
type apiCursorAdapter struct {
	adapterCore
}

const phaseAPIMessages = "messages"

func (a *apiCursorAdapter) InitialSync(ctx context.Context, account *models.Account, lookback time.Duration, report ProgressFunc) (string, error) {
	since := time.Now().Add(-lookback)
	cursor, err := a.runFeed(ctx, account, "", since, phaseAPIMessages, normalizeAPIMessage, report)
	if err != nil {
		return "", err
	}
	return cursor, nil
}

func (a *apiCursorAdapter) DeltaSync(ctx context.Context, account *models.Account, cursor string, report ProgressFunc) (string, error) {
	next, err := a.runFeed(ctx, account, cursor, time.Time{}, phaseAPIMessages, normalizeAPIMessage, report)
	if err != nil {
		return "", err
	}
	return maxNumericCursor(cursor, next), nil
}

// apiLabelMap translates well-known API label ids into the normalized
// vocabulary. Anything unrecognized passes through lowercased as a user label.
var apiLabelMap = map[string]string{
	"INBOX":     models.LabelInbox,
	"SENT":      models.LabelSent,
	"TRASH":     models.LabelTrash,
	"SPAM":      models.LabelSpam,
	"STARRED":   models.LabelStarred,
	"UNREAD":    models.LabelUnread,
	"DRAFT":     models.LabelDraft,
	"IMPORTANT": models.LabelImportant,
	"ARCHIVE":   models.LabelArchive,
}

// normalizeAPIMessage is the classification step for API-cursor accounts:
// it maps native label ids onto the normalized set and derives the message's
// flag booleans from the label-encoded state.
func normalizeAPIMessage(msg *models.Message) {
	labels := make([]string, 0, len(msg.Labels))
	seen := make(map[string]struct{})

	isUnread := false
	for _, raw := range msg.Labels {
		normalized, ok := apiLabelMap[raw]
		if !ok {
			// Category labels mirror tabbed-inbox grouping and are not
			// membership; skip them.
			if strings.HasPrefix(raw, "CATEGORY_") {
				continue
			}
			normalized = strings.ToLower(raw)
		}
		if normalized == models.LabelUnread {
			isUnread = true
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		labels = append(labels, normalized)
	}

	msg.Labels = labels
	msg.IsRead = !isUnread
	msg.IsStarred = hasString(labels, models.LabelStarred)
	msg.IsImportant = hasString(labels, models.LabelImportant)
}

func hasString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
