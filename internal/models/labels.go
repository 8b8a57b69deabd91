package models

// Normalized label vocabulary. Each sync adapter maps its protocol-native
// concepts (Gmail label IDs, IMAP special-use folders, JMAP mailbox roles)
// onto these.
const (
	LabelInbox     = "inbox"
	LabelSent      = "sent"
	LabelTrash     = "trash"
	LabelSpam      = "spam"
	LabelStarred   = "starred"
	LabelUnread    = "unread"
	LabelDraft     = "draft"
	LabelImportant = "important"
	LabelArchive   = "archive"
)

// SystemLabels lists every label synthesized by the sync adapters, as opposed
// to user-defined labels which pass through unchanged.
var SystemLabels = []string{
	LabelInbox,
	LabelSent,
	LabelTrash,
	LabelSpam,
	LabelStarred,
	LabelUnread,
	LabelDraft,
	LabelImportant,
	LabelArchive,
}

// IsSystemLabel reports whether label belongs to the normalized system set.
func IsSystemLabel(label string) bool {
	for _, l := range SystemLabels {
		if l == label {
			return true
		}
	}
	return false
}
