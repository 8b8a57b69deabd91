package actions

import "github.com/ferrymail/ferry/internal/models"

// command is the two-phase optimistic update: apply patches the view, revert
// restores exactly the state apply captured. revert runs only on permanent
// remote failure.
type command struct {
	apply  func()
	revert func()
}

func (c command) Apply() {
	if c.apply != nil {
		c.apply()
	}
}

func (c command) Revert() {
	if c.revert != nil {
		c.revert()
	}
}

// buildCommand captures the view mutation for an action kind together with
// its inverse. Kinds with no visible effect until the next sync (send,
// drafts) produce a no-op command.
func buildCommand(view *View, a Action) command {
	switch a.Kind {
	case KindArchive, KindTrash, KindDelete, KindMarkSpam, KindMoveToFolder:
		// Remove-style kinds take the thread out of the visible list.
		var (
			index   int
			removed bool
		)
		return command{
			apply: func() {
				index, removed = view.remove(a.ThreadID)
			},
			revert: func() {
				if removed {
					view.insert(a.ThreadID, index)
				}
			},
		}

	case KindMarkRead, KindMarkUnread:
		target := a.Kind == KindMarkRead
		var prev bool
		return command{
			apply:  func() { prev = view.setRead(a.ThreadID, target) },
			revert: func() { view.setRead(a.ThreadID, prev) },
		}

	case KindStar, KindUnstar:
		target := a.Kind == KindStar
		var prev bool
		return command{
			apply:  func() { prev = view.setStarred(a.ThreadID, target) },
			revert: func() { view.setStarred(a.ThreadID, prev) },
		}

	case KindMarkNotSpam:
		var hadInbox, hadSpam bool
		return command{
			apply: func() {
				hadSpam = view.removeLabel(a.ThreadID, models.LabelSpam)
				hadInbox = view.addLabel(a.ThreadID, models.LabelInbox)
			},
			revert: func() {
				if hadSpam {
					view.addLabel(a.ThreadID, models.LabelSpam)
				}
				if !hadInbox {
					view.removeLabel(a.ThreadID, models.LabelInbox)
				}
			},
		}

	case KindAddLabel:
		var had bool
		return command{
			apply: func() { had = view.addLabel(a.ThreadID, a.Label) },
			revert: func() {
				if !had {
					view.removeLabel(a.ThreadID, a.Label)
				}
			},
		}

	case KindRemoveLabel:
		var had bool
		return command{
			apply: func() { had = view.removeLabel(a.ThreadID, a.Label) },
			revert: func() {
				if had {
					view.addLabel(a.ThreadID, a.Label)
				}
			},
		}

	default:
		return command{}
	}
}
