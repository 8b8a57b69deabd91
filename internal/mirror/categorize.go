package mirror

import (
	"strings"

	"github.com/ferrymail/ferry/internal/models"
)

// Categorizer assigns a coarse category to a freshly inboxed thread. Returning
// false means "no opinion"; the thread stays uncategorized.
type Categorizer interface {
	Categorize(thread *models.Thread, messages []*models.Message) (string, bool)
}

// Thread categories produced by the built-in rules.
const (
	CategoryNewsletter   = "newsletter"
	CategoryNotification = "notification"
	CategoryPrimary      = "primary"
)

// RuleCategorizer is a cheap header/sender heuristic. It only looks at data
// already in the snapshot and never does I/O.
type RuleCategorizer struct{}

func NewRuleCategorizer() *RuleCategorizer {
	return &RuleCategorizer{}
}

var notificationSenderPrefixes = []string{
	"no-reply@", "noreply@", "donotreply@", "do-not-reply@",
	"notifications@", "notification@", "alerts@", "alert@",
}

func (c *RuleCategorizer) Categorize(_ *models.Thread, messages []*models.Message) (string, bool) {
	if len(messages) == 0 {
		return "", false
	}

	for _, msg := range messages {
		if msg.UnsubscribeHeader != "" {
			return CategoryNewsletter, true
		}
	}

	sender := strings.ToLower(messages[0].FromAddress)
	for _, prefix := range notificationSenderPrefixes {
		if strings.HasPrefix(sender, prefix) {
			return CategoryNotification, true
		}
	}

	return CategoryPrimary, true
}
