package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ferrymail/ferry/internal/models"
)

func loadedView() *View {
	v := NewView()
	v.Load([]*models.Thread{
		{ID: "t1", IsRead: true, Labels: []string{models.LabelInbox}},
		{ID: "t2", Labels: []string{models.LabelInbox}},
		{ID: "t3", IsStarred: true, Labels: []string{models.LabelInbox, models.LabelStarred}},
	})
	return v
}

func TestViewLoad(t *testing.T) {
	v := loadedView()

	assert.Equal(t, []string{"t1", "t2", "t3"}, v.Visible())
	assert.True(t, v.IsRead("t1"))
	assert.False(t, v.IsRead("t2"))
	assert.True(t, v.IsStarred("t3"))
	assert.True(t, v.HasLabel("t3", models.LabelStarred))
}

func TestRemoveCommandRevertRestoresPosition(t *testing.T) {
	v := loadedView()

	cmd := buildCommand(v, Action{Kind: KindArchive, ThreadID: "t2"})
	cmd.Apply()
	assert.Equal(t, []string{"t1", "t3"}, v.Visible())

	cmd.Revert()
	assert.Equal(t, []string{"t1", "t2", "t3"}, v.Visible())
}

func TestFlagCommandRevertRestoresPriorValue(t *testing.T) {
	t.Run("mark read", func(t *testing.T) {
		v := loadedView()

		cmd := buildCommand(v, Action{Kind: KindMarkRead, ThreadID: "t2"})
		cmd.Apply()
		assert.True(t, v.IsRead("t2"))

		cmd.Revert()
		assert.False(t, v.IsRead("t2"))
	})

	t.Run("unstar an already starred thread", func(t *testing.T) {
		v := loadedView()

		cmd := buildCommand(v, Action{Kind: KindUnstar, ThreadID: "t3"})
		cmd.Apply()
		assert.False(t, v.IsStarred("t3"))

		cmd.Revert()
		assert.True(t, v.IsStarred("t3"))
	})
}

func TestLabelCommandRevertIsExact(t *testing.T) {
	t.Run("adding a label the thread already had reverts to having it", func(t *testing.T) {
		v := loadedView()

		cmd := buildCommand(v, Action{Kind: KindAddLabel, ThreadID: "t3", Label: models.LabelStarred})
		cmd.Apply()
		cmd.Revert()

		assert.True(t, v.HasLabel("t3", models.LabelStarred))
	})

	t.Run("removing then reverting restores the label", func(t *testing.T) {
		v := loadedView()

		cmd := buildCommand(v, Action{Kind: KindRemoveLabel, ThreadID: "t1", Label: models.LabelInbox})
		cmd.Apply()
		assert.False(t, v.HasLabel("t1", models.LabelInbox))

		cmd.Revert()
		assert.True(t, v.HasLabel("t1", models.LabelInbox))
	})
}

func TestMarkNotSpamCommand(t *testing.T) {
	v := NewView()
	v.Load([]*models.Thread{{ID: "t1", Labels: []string{models.LabelSpam}}})

	cmd := buildCommand(v, Action{Kind: KindMarkNotSpam, ThreadID: "t1"})
	cmd.Apply()
	assert.False(t, v.HasLabel("t1", models.LabelSpam))
	assert.True(t, v.HasLabel("t1", models.LabelInbox))

	cmd.Revert()
	assert.True(t, v.HasLabel("t1", models.LabelSpam))
	assert.False(t, v.HasLabel("t1", models.LabelInbox))
}

func TestActionValidateAndResource(t *testing.T) {
	tests := []struct {
		name     string
		action   Action
		valid    bool
		resource string
	}{
		{name: "archive", action: Action{Kind: KindArchive, ThreadID: "t1"}, valid: true, resource: "t1"},
		{name: "archive without thread", action: Action{Kind: KindArchive}, valid: false},
		{name: "add label", action: Action{Kind: KindAddLabel, ThreadID: "t1", Label: "work"}, valid: true, resource: "t1"},
		{name: "move without folder", action: Action{Kind: KindMoveToFolder, ThreadID: "t1"}, valid: false},
		{name: "delete draft", action: Action{Kind: KindDeleteDraft, MessageID: "d1"}, valid: true, resource: "d1"},
		{name: "update draft without id", action: Action{Kind: KindUpdateDraft, Outgoing: &Outgoing{}}, valid: false},
		{
			name:     "send message",
			action:   Action{Kind: KindSendMessage, MessageID: "d2", Outgoing: &Outgoing{To: []string{"a@b.c"}}},
			valid:    true,
			resource: "d2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if !tt.valid {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.resource, tt.action.ResourceID())
		})
	}
}

func TestDecodeRejectsKindMismatch(t *testing.T) {
	raw, err := Action{Kind: KindArchive, ThreadID: "t1"}.Encode()
	assert.NoError(t, err)

	_, err = Decode("trash", raw)
	assert.Error(t, err)

	decoded, err := Decode("archive", raw)
	assert.NoError(t, err)
	assert.Equal(t, KindArchive, decoded.Kind)
	assert.Equal(t, "t1", decoded.ThreadID)
}
