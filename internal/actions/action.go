// Package actions implements the user-mutation pipeline: optimistic UI
// updates, synchronous local-mirror writes, remote dispatch, and handoff to
// the durable offline queue when the remote side is unreachable.
package actions

import (
	"encoding/json"
	"fmt"
)

// Kind is one of the closed set of user actions the pipeline accepts.
type Kind string

const (
	KindArchive      Kind = "archive"
	KindTrash        Kind = "trash"
	KindDelete       Kind = "delete"
	KindMarkRead     Kind = "mark_read"
	KindMarkUnread   Kind = "mark_unread"
	KindStar         Kind = "star"
	KindUnstar       Kind = "unstar"
	KindMarkSpam     Kind = "mark_spam"
	KindMarkNotSpam  Kind = "mark_not_spam"
	KindMoveToFolder Kind = "move_to_folder"
	KindAddLabel     Kind = "add_label"
	KindRemoveLabel  Kind = "remove_label"
	KindSendMessage  Kind = "send_message"
	KindCreateDraft  Kind = "create_draft"
	KindUpdateDraft  Kind = "update_draft"
	KindDeleteDraft  Kind = "delete_draft"
)

var validKinds = map[Kind]struct{}{
	KindArchive: {}, KindTrash: {}, KindDelete: {},
	KindMarkRead: {}, KindMarkUnread: {},
	KindStar: {}, KindUnstar: {},
	KindMarkSpam: {}, KindMarkNotSpam: {},
	KindMoveToFolder: {}, KindAddLabel: {}, KindRemoveLabel: {},
	KindSendMessage: {}, KindCreateDraft: {}, KindUpdateDraft: {}, KindDeleteDraft: {},
}

// Outgoing is the composed payload carried by send-message and the draft
// kinds.
type Outgoing struct {
	To       []string `json:"to"`
	CC       []string `json:"cc,omitempty"`
	BCC      []string `json:"bcc,omitempty"`
	Subject  string   `json:"subject"`
	BodyHTML string   `json:"body_html,omitempty"`
	BodyText string   `json:"body_text,omitempty"`
}

// Action is one user-initiated mutation. Thread-scoped kinds fill ThreadID;
// draft and send kinds fill MessageID (assigned by the pipeline when empty)
// and Outgoing.
type Action struct {
	Kind      Kind      `json:"kind"`
	ThreadID  string    `json:"thread_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Label     string    `json:"label,omitempty"`
	Folder    string    `json:"folder,omitempty"`
	Outgoing  *Outgoing `json:"outgoing,omitempty"`
}

// Validate checks the action is well-formed before any state is touched.
func (a Action) Validate() error {
	if _, ok := validKinds[a.Kind]; !ok {
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}

	switch a.Kind {
	case KindAddLabel, KindRemoveLabel:
		if a.Label == "" {
			return fmt.Errorf("%s requires a label", a.Kind)
		}
		if a.ThreadID == "" {
			return fmt.Errorf("%s requires a thread id", a.Kind)
		}
	case KindMoveToFolder:
		if a.Folder == "" {
			return fmt.Errorf("%s requires a destination folder", a.Kind)
		}
		if a.ThreadID == "" {
			return fmt.Errorf("%s requires a thread id", a.Kind)
		}
	case KindSendMessage, KindCreateDraft, KindUpdateDraft:
		if a.Outgoing == nil {
			return fmt.Errorf("%s requires an outgoing payload", a.Kind)
		}
		if a.Kind == KindSendMessage && len(a.Outgoing.To) == 0 {
			return fmt.Errorf("%s requires at least one recipient", a.Kind)
		}
		if a.Kind == KindUpdateDraft && a.MessageID == "" {
			return fmt.Errorf("%s requires a message id", a.Kind)
		}
	case KindDeleteDraft:
		if a.MessageID == "" {
			return fmt.Errorf("%s requires a message id", a.Kind)
		}
	default:
		if a.ThreadID == "" {
			return fmt.Errorf("%s requires a thread id", a.Kind)
		}
	}

	return nil
}

// ResourceID is the identifier queue compaction groups operations by: the
// thread for thread-scoped kinds, the draft message otherwise.
func (a Action) ResourceID() string {
	switch a.Kind {
	case KindSendMessage, KindCreateDraft, KindUpdateDraft, KindDeleteDraft:
		return a.MessageID
	default:
		return a.ThreadID
	}
}

// Params flattens the action into the protocol client's mutation payload.
func (a Action) Params() map[string]any {
	params := map[string]any{}

	if a.ThreadID != "" {
		params["thread_id"] = a.ThreadID
	}
	if a.MessageID != "" {
		params["message_id"] = a.MessageID
	}
	if a.Label != "" {
		params["label"] = a.Label
	}
	if a.Folder != "" {
		params["folder"] = a.Folder
	}
	if a.Outgoing != nil {
		params["to"] = a.Outgoing.To
		if len(a.Outgoing.CC) > 0 {
			params["cc"] = a.Outgoing.CC
		}
		if len(a.Outgoing.BCC) > 0 {
			params["bcc"] = a.Outgoing.BCC
		}
		params["subject"] = a.Outgoing.Subject
		params["body_html"] = a.Outgoing.BodyHTML
		params["body_text"] = a.Outgoing.BodyText
	}

	return params
}

// Encode serializes the action for durable queue storage.
func (a Action) Encode() (json.RawMessage, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to encode action: %w", err)
	}
	return raw, nil
}

// Decode restores an action from its queued form and revalidates it, so a
// corrupted row cannot reach the protocol client.
func Decode(kind string, raw json.RawMessage) (Action, error) {
	var a Action
	if err := json.Unmarshal(raw, &a); err != nil {
		return Action{}, fmt.Errorf("failed to decode queued action: %w", err)
	}

	if a.Kind == "" {
		a.Kind = Kind(kind)
	}
	if string(a.Kind) != kind {
		return Action{}, fmt.Errorf("queued action kind mismatch: row says %q, params say %q", kind, a.Kind)
	}

	if err := a.Validate(); err != nil {
		return Action{}, err
	}

	return a, nil
}
