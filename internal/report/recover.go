package report

import (
	"sort"
	"strings"

	"metapro/internal/domain"
)

// FromOutcomes rebuilds a report from recorded outcomes, as found in the
// partial-results store after an interrupted run. Rows are keyed by the
// source filename since no output name was assigned yet.
func FromOutcomes(outcomes []domain.Outcome) Report {
	sorted := append([]domain.Outcome(nil), outcomes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	var rep Report
	rep.Rows = make([]Row, 0, len(sorted))
	for _, o := range sorted {
		if o.Succeeded() {
			rep.Succeeded++
			rep.Rows = append(rep.Rows, Row{
				Filename: o.Filename,
				Title:    o.Record.Title,
				Keywords: strings.Join(o.Record.Keywords, ","),
				Category: o.Record.Category,
				Releases: o.Record.Releases,
			})
			continue
		}
		rep.Rows = append(rep.Rows, Row{Filename: o.Filename})
		rep.Failures = append(rep.Failures, Failure{Index: o.Index, Filename: o.Filename, Stage: o.Stage, Error: o.Error})
	}
	return rep
}
