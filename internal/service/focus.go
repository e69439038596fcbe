package service

import (
	"errors"
	"sync"
)

// ErrUnknownPod is returned for focus requests naming a pod outside the current snapshot.
var ErrUnknownPod = errors.New("pod is not in the current snapshot")

// FocusTarget identifies the focused pod.
type FocusTarget struct {
	Name      string
	Namespace string
}

func (t FocusTarget) Empty() bool { return t.Name == "" }

// FocusTracker holds at most one focused pod. It never picks a replacement on its own.
type FocusTracker struct {
	mu       sync.Mutex
	cell     Cell[FocusTarget]
	snapshot func() PodSnapshot
	wake     []*Signal
}

// NewFocusTracker validates requests against snapshot and wakes every signal in
// wake when the focus changes.
func NewFocusTracker(snapshot func() PodSnapshot, wake ...*Signal) *FocusTracker {
	return &FocusTracker{snapshot: snapshot, wake: wake}
}

// Request focuses name if it is in the current snapshot. Re-focusing the current
// pod is accepted and still wakes the loops.
func (t *FocusTracker) Request(name string) (FocusTarget, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps, ok := t.snapshot().Get(name)
	if !ok {
		return FocusTarget{}, ErrUnknownPod
	}
	target := FocusTarget{Name: ps.Name, Namespace: ps.Namespace}
	t.cell.Store(target)
	t.notify()
	return target, nil
}

// Current returns the focus and its version.
func (t *FocusTracker) Current() (FocusTarget, uint64) {
	return t.cell.Load()
}

// Clear drops the focus. It reports whether there was one.
func (t *FocusTracker) Clear() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clearLocked()
}

// ClearIf drops the focus only if it still names name.
func (t *FocusTracker) ClearIf(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, _ := t.cell.Load()
	if cur.Name != name {
		return false
	}
	return t.clearLocked()
}

// Reconcile clears the focus when it is absent from snap.
func (t *FocusTracker) Reconcile(snap PodSnapshot) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, _ := t.cell.Load()
	if cur.Empty() || snap.Contains(cur.Name) {
		return false
	}
	return t.clearLocked()
}

func (t *FocusTracker) clearLocked() bool {
	cur, _ := t.cell.Load()
	if cur.Empty() {
		return false
	}
	t.cell.Store(FocusTarget{})
	t.notify()
	return true
}

func (t *FocusTracker) notify() {
	for _, s := range t.wake {
		s.Notify()
	}
}
