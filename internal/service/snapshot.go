package service

import (
	"sort"

	corev1 "k8s.io/api/core/v1"

	"github.com/kubilitics/kubeluma/internal/models"
)

// PodSnapshot is the name-ordered, name-unique set of pods matching the filter.
// It is immutable once built.
type PodSnapshot struct {
	pods  []models.PodSummary
	index map[string]int
}

// BuildSnapshot filters pods by p, sorts by name and keeps the first pod of each name
// (namespace order breaks ties).
func BuildSnapshot(pods []corev1.Pod, p *Pattern) PodSnapshot {
	matched := make([]models.PodSummary, 0, len(pods))
	for i := range pods {
		if p != nil && !p.Match(pods[i].Name) {
			continue
		}
		matched = append(matched, PodSummaryFrom(&pods[i]))
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Name != matched[j].Name {
			return matched[i].Name < matched[j].Name
		}
		return matched[i].Namespace < matched[j].Namespace
	})
	return newSnapshot(matched)
}

func newSnapshot(sorted []models.PodSummary) PodSnapshot {
	s := PodSnapshot{
		pods:  make([]models.PodSummary, 0, len(sorted)),
		index: make(map[string]int, len(sorted)),
	}
	for _, ps := range sorted {
		if _, dup := s.index[ps.Name]; dup {
			continue
		}
		s.index[ps.Name] = len(s.pods)
		s.pods = append(s.pods, ps)
	}
	return s
}

// Pods returns a copy of the summaries in name order.
func (s PodSnapshot) Pods() []models.PodSummary {
	out := make([]models.PodSummary, len(s.pods))
	copy(out, s.pods)
	return out
}

func (s PodSnapshot) Get(name string) (models.PodSummary, bool) {
	i, ok := s.index[name]
	if !ok {
		return models.PodSummary{}, false
	}
	return s.pods[i], true
}

func (s PodSnapshot) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

func (s PodSnapshot) Len() int { return len(s.pods) }

// SnapshotDiff lists names added, removed and changed between two snapshots.
type SnapshotDiff struct {
	Added   []string
	Removed []string
	Changed []string
}

func (d SnapshotDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffSnapshots compares prev and next by name and per-pod fields.
func DiffSnapshots(prev, next PodSnapshot) SnapshotDiff {
	var d SnapshotDiff
	for _, ps := range next.pods {
		old, ok := prev.Get(ps.Name)
		switch {
		case !ok:
			d.Added = append(d.Added, ps.Name)
		case old != ps:
			d.Changed = append(d.Changed, ps.Name)
		}
	}
	for _, ps := range prev.pods {
		if !next.Contains(ps.Name) {
			d.Removed = append(d.Removed, ps.Name)
		}
	}
	return d
}
