package models

import "time"

// Protocol identifies which change-feed protocol an account speaks.
type Protocol string

const (
	ProtocolAPICursor Protocol = "api-cursor"
	ProtocolIMAP      Protocol = "imap"
	ProtocolJMAP      Protocol = "jmap"
)

// Account is one configured mailbox identity. SyncCursor is the opaque
// protocol-specific position of the last successful sync; nil means the
// account has never been synced and needs a full initial sync.
type Account struct {
	ID           string    `json:"id"`
	EmailAddress string    `json:"email_address"`
	Protocol     Protocol  `json:"protocol"`
	SyncCursor   *string   `json:"sync_cursor,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Thread struct {
	ID             string     `json:"id"`
	AccountID      string     `json:"account_id"`
	Subject        string     `json:"subject"`
	Snippet        string     `json:"snippet"`
	LastActivityAt *time.Time `json:"last_activity_at"`
	MessageCount   int        `json:"message_count"`
	IsRead         bool       `json:"is_read"`
	IsStarred      bool       `json:"is_starred"`
	IsImportant    bool       `json:"is_important"`
	HasAttachments bool       `json:"has_attachments"`
	// Category is set by rule-based or manual categorization; nil means
	// never categorized.
	Category *string   `json:"category,omitempty"`
	Labels   []string  `json:"labels,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}

type Message struct {
	ID                string       `json:"id"`
	ThreadID          string       `json:"thread_id"`
	AccountID         string       `json:"account_id"`
	FromAddress       string       `json:"from_address"`
	ToAddresses       []string     `json:"to_addresses"`
	CCAddresses       []string     `json:"cc_addresses"`
	Subject           string       `json:"subject"`
	BodyHTML          string       `json:"body_html"`
	BodyText          string       `json:"body_text"`
	Labels            []string     `json:"labels"`
	IsRead            bool         `json:"is_read"`
	IsStarred         bool         `json:"is_starred"`
	IsImportant       bool         `json:"is_important"`
	SizeBytes         int64        `json:"size_bytes"`
	SentAt            *time.Time   `json:"sent_at"`
	ReceivedAt        *time.Time   `json:"received_at"`
	UnsubscribeHeader string       `json:"unsubscribe_header,omitempty"`
	Attachments       []Attachment `json:"attachments,omitempty"`
}

// HasLabel reports whether the message carries the given normalized label.
func (m *Message) HasLabel(label string) bool {
	for _, l := range m.Labels {
		if l == label {
			return true
		}
	}
	return false
}

type Attachment struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	AccountID string `json:"account_id"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	// BlobRef is the opaque per-protocol reference used to fetch the
	// attachment bytes on demand.
	BlobRef   string `json:"blob_ref"`
	IsInline  bool   `json:"is_inline"`
	ContentID string `json:"content_id,omitempty"`
}
