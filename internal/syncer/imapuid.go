package syncer

import (
	"context"
	"strings"
	"time"

	"github.com/emersion/go-imap"

	"github.com/ferrymail/ferry/internal/models"
	"github.com/ferrymail/ferry/internal/protocol"
)

// imapUIDAdapter syncs accounts whose position is a per-folder UID high-water
// mark. The client reports changed messages labeled with folder names,
// special-use attributes, and IMAP flags; a folder whose UIDVALIDITY moved
// surfaces as a cursor-expired condition and forces a full sync.
type imapUIDAdapter struct {
	adapterCore
}

const phaseIMAPFolders = "folders"

func (a *imapUIDAdapter) InitialSync(ctx context.Context, account *models.Account, lookback time.Duration, report ProgressFunc) (string, error) {
	since := time.Now().Add(-lookback)
	next, err := a.runFeed(ctx, account, "", since, phaseIMAPFolders, normalizeIMAPMessage, report)
	if err != nil {
		return "", err
	}

	// Round-trip through the typed form so a malformed client cursor is
	// caught here rather than on the next delta sync.
	parsed, err := parseIMAPCursor(next)
	if err != nil {
		return "", err
	}
	return parsed.String()
}

func (a *imapUIDAdapter) DeltaSync(ctx context.Context, account *models.Account, cursor string, report ProgressFunc) (string, error) {
	stored, err := parseIMAPCursor(cursor)
	if err != nil {
		// An unreadable stored cursor is as good as an expired one.
		return "", protocol.ErrCursorExpired
	}

	next, err := a.runFeed(ctx, account, cursor, time.Time{}, phaseIMAPFolders, normalizeIMAPMessage, report)
	if err != nil {
		return "", err
	}

	parsed, err := parseIMAPCursor(next)
	if err != nil {
		return "", err
	}

	return stored.merge(parsed).String()
}

// normalizeIMAPMessage is the classification step for IMAP accounts. The
// incoming label set mixes folder names, special-use attributes, and flags;
// flags and attributes are recognized by their backslash prefix using the
// go-imap constants, folders by conventional naming.
func normalizeIMAPMessage(msg *models.Message) {
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

	isRead, isStarred, isDraft := false, false, false

	for _, raw := range msg.Labels {
		switch raw {
		case imap.SeenFlag:
			isRead = true
			continue
		case imap.FlaggedFlag:
			isStarred = true
			continue
		case imap.DraftFlag:
			isDraft = true
			continue
		case imap.AnsweredFlag, imap.RecentFlag, imap.DeletedFlag:
			continue
		}

		if strings.HasPrefix(raw, "\\") {
			add(normalizeSpecialUse(raw))
			continue
		}

		add(normalizeFolderName(raw))
	}

	if isStarred {
		add(models.LabelStarred)
	}
	if isDraft {
		add(models.LabelDraft)
	}

	msg.Labels = labels
	msg.IsRead = isRead
	msg.IsStarred = isStarred
	// IMAP has no importance concept; leave IsImportant untouched.
}

// normalizeSpecialUse maps RFC 6154 special-use attributes onto the
// normalized vocabulary. Unknown attributes are dropped.
func normalizeSpecialUse(attr string) string {
	switch attr {
	case imap.SentAttr:
		return models.LabelSent
	case imap.DraftsAttr:
		return models.LabelDraft
	case imap.JunkAttr:
		return models.LabelSpam
	case imap.TrashAttr:
		return models.LabelTrash
	case imap.ArchiveAttr:
		return models.LabelArchive
	case imap.FlaggedAttr:
		return models.LabelStarred
	default:
		return ""
	}
}

// normalizeFolderName maps conventional folder names onto the normalized
// vocabulary; anything unrecognized passes through lowercased as a user label.
func normalizeFolderName(folder string) string {
	switch strings.ToLower(folder) {
	case "inbox":
		return models.LabelInbox
	case "sent", "sent messages", "sent mail":
		return models.LabelSent
	case "drafts":
		return models.LabelDraft
	case "trash", "deleted messages", "deleted items":
		return models.LabelTrash
	case "junk", "spam", "junk mail":
		return models.LabelSpam
	case "archive", "all mail":
		return models.LabelArchive
	default:
		return strings.ToLower(folder)
	}
}
