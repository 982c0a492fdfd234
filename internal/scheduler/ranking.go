package scheduler

import (
	"sort"
	"time"

	"github.com/tascade-run/tascade/internal/domain/task"
)

// rankKey is the deterministic tuple spec.md section 4.4 ranks the pull
// queue by: priority ascending, aging factor ascending, contention score
// ascending, short_id ascending for stability.
type rankKey struct {
	priority    int
	agingFactor float64
	contention  int
	shortID     string
}

// agingFactor is monotone in time-since-Ready but DECREASING, so that
// sorting it ascending (as the ranking key requires) surfaces
// longer-waiting tasks first: agingFactor = 1 / (1 + waitSeconds).
func agingFactor(t task.Task, now time.Time) float64 {
	if t.ReadySince == nil {
		return 1.0
	}
	wait := now.Sub(*t.ReadySince).Seconds()
	if wait < 0 {
		wait = 0
	}
	return 1.0 / (1.0 + wait)
}

// contentionScore counts how many other active tasks' exclusive_paths
// overlap this task's exclusive_paths — the conflict-minimization signal.
// Lower is better, which is also ascending, so no inversion is needed here.
func contentionScore(t task.Task, activeExclusivePaths [][]string) int {
	mine := make(map[string]struct{}, len(t.ExclusivePaths))
	for _, p := range t.ExclusivePaths {
		mine[p] = struct{}{}
	}
	if len(mine) == 0 {
		return 0
	}
	score := 0
	for _, paths := range activeExclusivePaths {
		for _, p := range paths {
			if _, ok := mine[p]; ok {
				score++
			}
		}
	}
	return score
}

type ranked struct {
	task task.Task
	key  rankKey
}

// Rank sorts candidates by the ranking key and returns a new, sorted slice.
// Keys are computed once up front and carried alongside each task so the
// sort comparator never recomputes (or misattributes) a key after a swap.
func Rank(candidates []task.Task, activeExclusivePaths [][]string, now time.Time) []task.Task {
	pairs := make([]ranked, len(candidates))
	for i, t := range candidates {
		pairs[i] = ranked{
			task: t,
			key: rankKey{
				priority:    t.Priority,
				agingFactor: agingFactor(t, now),
				contention:  contentionScore(t, activeExclusivePaths),
				shortID:     t.ShortID,
			},
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		a, b := pairs[i].key, pairs[j].key
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if a.agingFactor != b.agingFactor {
			return a.agingFactor < b.agingFactor
		}
		if a.contention != b.contention {
			return a.contention < b.contention
		}
		return a.shortID < b.shortID
	})
	out := make([]task.Task, len(pairs))
	for i, p := range pairs {
		out[i] = p.task
	}
	return out
}
