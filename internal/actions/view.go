package actions

import (
	"sync"

	"github.com/ferrymail/ferry/internal/models"
)

// threadState is the slice of thread state the UI can observe change
// optimistically: flags and label membership.
type threadState struct {
	isRead    bool
	isStarred bool
	labels    map[string]struct{}
}

// View is the in-memory list the UI currently renders. The pipeline patches
// it ahead of remote confirmation and reverts it on permanent failure; sync
// rebuilds it wholesale from the mirror.
type View struct {
	mu      sync.Mutex
	order   []string
	threads map[string]*threadState
}

func NewView() *View {
	return &View{threads: make(map[string]*threadState)}
}

// Load replaces the view's contents from a mirror read, in display order.
func (v *View) Load(threads []*models.Thread) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.order = v.order[:0]
	v.threads = make(map[string]*threadState, len(threads))

	for _, t := range threads {
		labels := make(map[string]struct{}, len(t.Labels))
		for _, l := range t.Labels {
			labels[l] = struct{}{}
		}
		v.order = append(v.order, t.ID)
		v.threads[t.ID] = &threadState{
			isRead:    t.IsRead,
			isStarred: t.IsStarred,
			labels:    labels,
		}
	}
}

// Visible returns the thread ids currently in the list, in order.
func (v *View) Visible() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]string, len(v.order))
	copy(out, v.order)
	return out
}

// Contains reports whether the thread is currently in the visible list.
func (v *View) Contains(threadID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, id := range v.order {
		if id == threadID {
			return true
		}
	}
	return false
}

// IsRead reports the view's read flag for the thread. Unknown threads read
// as false.
func (v *View) IsRead(threadID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if t, ok := v.threads[threadID]; ok {
		return t.isRead
	}
	return false
}

// IsStarred reports the view's starred flag for the thread.
func (v *View) IsStarred(threadID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if t, ok := v.threads[threadID]; ok {
		return t.isStarred
	}
	return false
}

// HasLabel reports the view's label membership for the thread.
func (v *View) HasLabel(threadID, label string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	t, ok := v.threads[threadID]
	if !ok {
		return false
	}
	_, ok = t.labels[label]
	return ok
}

// remove takes the thread out of the visible list and returns its prior
// position so a revert can put it back where it was.
func (v *View) remove(threadID string) (int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i, id := range v.order {
		if id == threadID {
			v.order = append(v.order[:i], v.order[i+1:]...)
			return i, true
		}
	}
	return 0, false
}

// insert puts the thread back into the visible list at the given position.
func (v *View) insert(threadID string, index int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if index < 0 {
		index = 0
	}
	if index > len(v.order) {
		index = len(v.order)
	}

	v.order = append(v.order, "")
	copy(v.order[index+1:], v.order[index:])
	v.order[index] = threadID
}

func (v *View) state(threadID string) *threadState {
	t, ok := v.threads[threadID]
	if !ok {
		t = &threadState{labels: make(map[string]struct{})}
		v.threads[threadID] = t
	}
	return t
}

// setRead flips the read flag and returns the prior value.
func (v *View) setRead(threadID string, isRead bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	t := v.state(threadID)
	prev := t.isRead
	t.isRead = isRead
	return prev
}

// setStarred flips the starred flag and returns the prior value.
func (v *View) setStarred(threadID string, isStarred bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	t := v.state(threadID)
	prev := t.isStarred
	t.isStarred = isStarred
	return prev
}

// addLabel adds a label and reports whether the thread already had it.
func (v *View) addLabel(threadID, label string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	t := v.state(threadID)
	_, had := t.labels[label]
	t.labels[label] = struct{}{}
	return had
}

// removeLabel removes a label and reports whether the thread had it.
func (v *View) removeLabel(threadID, label string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	t := v.state(threadID)
	_, had := t.labels[label]
	delete(t.labels, label)
	return had
}
