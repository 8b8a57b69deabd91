package syncer

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// compareNumericCursors orders two history-id style cursors. Remote-assigned
// ids can exceed the safe integer range, so comparison goes through math/big
// rather than any float conversion. Returns -1, 0, or 1; an empty cursor
// sorts before everything.
func compareNumericCursors(a, b string) (int, error) {
	if a == "" && b == "" {
		return 0, nil
	}
	if a == "" {
		return -1, nil
	}
	if b == "" {
		return 1, nil
	}

	ia, ok := new(big.Int).SetString(a, 10)
	if !ok {
		return 0, fmt.Errorf("invalid numeric cursor %q", a)
	}
	ib, ok := new(big.Int).SetString(b, 10)
	if !ok {
		return 0, fmt.Errorf("invalid numeric cursor %q", b)
	}

	return ia.Cmp(ib), nil
}

// maxNumericCursor keeps the stored cursor monotonic: it returns whichever of
// the two cursors is larger, falling back to next on parse trouble so a
// malformed stored value cannot wedge the account.
func maxNumericCursor(stored, next string) string {
	cmp, err := compareNumericCursors(stored, next)
	if err != nil {
		return next
	}
	if cmp > 0 {
		return stored
	}
	return next
}

// folderState is one folder's position in an IMAP-UID cursor: the mailbox
// generation and the highest UID already synced.
type folderState struct {
	UIDValidity uint32 `json:"uid_validity"`
	LastSeenUID uint32 `json:"last_seen_uid"`
}

// imapCursor is the serialized form of an IMAP account's sync position:
// a per-folder UID high-water-mark map.
type imapCursor map[string]folderState

func parseIMAPCursor(cursor string) (imapCursor, error) {
	if cursor == "" {
		return imapCursor{}, nil
	}

	var c imapCursor
	if err := json.Unmarshal([]byte(cursor), &c); err != nil {
		return nil, fmt.Errorf("invalid imap cursor: %w", err)
	}
	return c, nil
}

func (c imapCursor) String() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode imap cursor: %w", err)
	}
	return string(data), nil
}

// merge folds a newer cursor into this one folder by folder. A folder whose
// UIDVALIDITY changed adopts the new generation wholesale; otherwise the
// high-water mark only moves forward.
func (c imapCursor) merge(next imapCursor) imapCursor {
	merged := make(imapCursor, len(c)+len(next))
	for folder, state := range c {
		merged[folder] = state
	}
	for folder, state := range next {
		prev, ok := merged[folder]
		if !ok || prev.UIDValidity != state.UIDValidity || state.LastSeenUID > prev.LastSeenUID {
			merged[folder] = state
		}
	}
	return merged
}
