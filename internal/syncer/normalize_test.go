package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ferrymail/ferry/internal/models"
)

func TestNormalizeAPIMessage(t *testing.T) {
	tests := []struct {
		name           string
		labels         []string
		expectedLabels []string
		isRead         bool
		isStarred      bool
		isImportant    bool
	}{
		{
			name:           "unread inbox message",
			labels:         []string{"INBOX", "UNREAD"},
			expectedLabels: []string{models.LabelInbox},
			isRead:         false,
		},
		{
			name:           "read starred message",
			labels:         []string{"INBOX", "STARRED"},
			expectedLabels: []string{models.LabelInbox, models.LabelStarred},
			isRead:         true,
			isStarred:      true,
		},
		{
			name:           "category labels are dropped",
			labels:         []string{"INBOX", "CATEGORY_PROMOTIONS", "CATEGORY_SOCIAL"},
			expectedLabels: []string{models.LabelInbox},
			isRead:         true,
		},
		{
			name:           "important flag derives from label",
			labels:         []string{"IMPORTANT", "INBOX"},
			expectedLabels: []string{models.LabelImportant, models.LabelInbox},
			isRead:         true,
			isImportant:    true,
		},
		{
			name:           "user labels pass through lowercased",
			labels:         []string{"Receipts", "INBOX"},
			expectedLabels: []string{"receipts", models.LabelInbox},
			isRead:         true,
		},
		{
			name:           "duplicates collapse",
			labels:         []string{"INBOX", "INBOX"},
			expectedLabels: []string{models.LabelInbox},
			isRead:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &models.Message{Labels: tt.labels}
			normalizeAPIMessage(msg)

			assert.Equal(t, tt.expectedLabels, msg.Labels)
			assert.Equal(t, tt.isRead, msg.IsRead)
			assert.Equal(t, tt.isStarred, msg.IsStarred)
			assert.Equal(t, tt.isImportant, msg.IsImportant)
		})
	}
}

func TestNormalizeIMAPMessage(t *testing.T) {
	tests := []struct {
		name           string
		labels         []string
		expectedLabels []string
		isRead         bool
		isStarred      bool
	}{
		{
			name:           "seen flag marks read",
			labels:         []string{"INBOX", `\Seen`},
			expectedLabels: []string{models.LabelInbox},
			isRead:         true,
		},
		{
			name:           "flagged becomes starred",
			labels:         []string{"INBOX", `\Flagged`},
			expectedLabels: []string{models.LabelInbox, models.LabelStarred},
			isStarred:      true,
		},
		{
			name:           "special-use attributes map to system labels",
			labels:         []string{`\Junk`, `\Seen`},
			expectedLabels: []string{models.LabelSpam},
			isRead:         true,
		},
		{
			name:           "conventional folder names are recognized",
			labels:         []string{"Sent Messages"},
			expectedLabels: []string{models.LabelSent},
		},
		{
			name:           "transport flags are dropped",
			labels:         []string{"INBOX", `\Answered`, `\Recent`},
			expectedLabels: []string{models.LabelInbox},
		},
		{
			name:           "unknown folders pass through lowercased",
			labels:         []string{"Invoices/2024"},
			expectedLabels: []string{"invoices/2024"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &models.Message{Labels: tt.labels}
			normalizeIMAPMessage(msg)

			assert.Equal(t, tt.expectedLabels, msg.Labels)
			assert.Equal(t, tt.isRead, msg.IsRead)
			assert.Equal(t, tt.isStarred, msg.IsStarred)
		})
	}
}

func TestNormalizeJMAPMessage(t *testing.T) {
	tests := []struct {
		name           string
		labels         []string
		expectedLabels []string
		isRead         bool
		isStarred      bool
		isImportant    bool
	}{
		{
			name:           "seen keyword marks read",
			labels:         []string{"inbox", "$seen"},
			expectedLabels: []string{models.LabelInbox},
			isRead:         true,
		},
		{
			name:           "flagged keyword becomes starred",
			labels:         []string{"inbox", "$flagged"},
			expectedLabels: []string{models.LabelInbox, models.LabelStarred},
			isStarred:      true,
		},
		{
			name:           "mailbox roles map to system labels",
			labels:         []string{"junk"},
			expectedLabels: []string{models.LabelSpam},
		},
		{
			name:           "important role sets the flag",
			labels:         []string{"important", "inbox"},
			expectedLabels: []string{models.LabelImportant, models.LabelInbox},
			isImportant:    true,
		},
		{
			name:           "draft keyword adds the draft label",
			labels:         []string{"$draft"},
			expectedLabels: []string{models.LabelDraft},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &models.Message{Labels: tt.labels}
			normalizeJMAPMessage(msg)

			assert.Equal(t, tt.expectedLabels, msg.Labels)
			assert.Equal(t, tt.isRead, msg.IsRead)
			assert.Equal(t, tt.isStarred, msg.IsStarred)
			assert.Equal(t, tt.isImportant, msg.IsImportant)
		})
	}
}
