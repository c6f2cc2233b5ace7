// Package partial persists item outcomes as they complete so that an
// interrupted run can be recovered.
package partial

import (
	"errors"
	"regexp"
	"sort"

	"metapro/internal/domain"
)

var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// ValidRunID reports whether id may be used as a run identifier.
func ValidRunID(id string) bool {
	return runIDPattern.MatchString(id)
}

func checkRunID(id string) error {
	if !ValidRunID(id) {
		return errors.New("partial: invalid run id")
	}
	return nil
}

// reconcile orders outcomes by index. A later record for the same index
// replaces an earlier one.
func reconcile(outcomes []domain.Outcome) []domain.Outcome {
	byIndex := make(map[int]int, len(outcomes))
	out := make([]domain.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if pos, ok := byIndex[o.Index]; ok {
			out[pos] = o
			continue
		}
		byIndex[o.Index] = len(out)
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
