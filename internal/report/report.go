// Package report assembles the per-run CSV report and the archive of
// finished assets.
package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"metapro/internal/domain"
	"metapro/pkg/zip"
)

// Header is the fixed column order of the report file.
var Header = []string{"Filename", "Title", "Keywords", "Category", "Releases"}

// Row is one report line.
type Row struct {
	Filename string
	Title    string
	Keywords string
	Category string
	Releases string
}

// Failure marks an item that did not make it into the archive.
type Failure struct {
	Index    int          `json:"index"`
	Filename string       `json:"filename"`
	Stage    domain.Stage `json:"stage"`
	Error    string       `json:"error"`
}

// Report holds one row per attempted item, in input order, plus the
// failures behind the empty rows.
type Report struct {
	Rows      []Row     `json:"rows"`
	Failures  []Failure `json:"failures"`
	Succeeded int       `json:"succeeded"`
}

type entry struct {
	index int
	row   Row
}

// Aggregate merges processed assets and item failures into a report and an
// archive of the processed binaries. Failed items only appear in the report.
func Aggregate(processed []domain.ProcessedAsset, failures []domain.ItemError) (Report, []byte, error) {
	entries := make([]entry, 0, len(processed)+len(failures))
	assets := make([]zip.Asset, 0, len(processed))
	seen := make(map[int]struct{}, len(processed)+len(failures))

	sorted := append([]domain.ProcessedAsset(nil), processed...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	now := time.Now()
	for _, p := range sorted {
		if _, dup := seen[p.Index]; dup {
			return Report{}, nil, fmt.Errorf("report: item %d aggregated twice", p.Index)
		}
		seen[p.Index] = struct{}{}
		entries = append(entries, entry{index: p.Index, row: Row{
			Filename: p.OutputName,
			Title:    p.Record.Title,
			Keywords: strings.Join(p.Record.Keywords, ","),
			Category: p.Record.Category,
			Releases: p.Record.Releases,
		}})
		assets = append(assets, zip.Asset{Filename: p.OutputName, Data: p.Data, Modified: now})
	}

	rep := Report{Succeeded: len(sorted)}
	for _, f := range failures {
		if _, dup := seen[f.Index]; dup {
			return Report{}, nil, fmt.Errorf("report: item %d aggregated twice", f.Index)
		}
		seen[f.Index] = struct{}{}
		entries = append(entries, entry{index: f.Index, row: Row{Filename: f.Filename}})
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		rep.Failures = append(rep.Failures, Failure{Index: f.Index, Filename: f.Filename, Stage: f.Stage, Error: msg})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].index < entries[j].index })
	sort.SliceStable(rep.Failures, func(i, j int) bool { return rep.Failures[i].Index < rep.Failures[j].Index })
	rep.Rows = make([]Row, len(entries))
	for i, e := range entries {
		rep.Rows[i] = e.row
	}

	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		return Report{}, nil, err
	}
	return rep, archive, nil
}

// CSV renders the report as UTF-8 comma separated text with a header row.
func (r Report) CSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, err
	}
	for _, row := range r.Rows {
		if err := w.Write([]string{row.Filename, row.Title, row.Keywords, row.Category, row.Releases}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Parse reads a report file back into rows.
func Parse(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("report: empty file")
		}
		return nil, fmt.Errorf("report: read header: %w", err)
	}
	for i, h := range Header {
		if strings.TrimPrefix(header[i], "\ufeff") != h {
			return nil, fmt.Errorf("report: unexpected column %q at %d", header[i], i)
		}
	}
	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("report: read row: %w", err)
		}
		rows = append(rows, Row{Filename: rec[0], Title: rec[1], Keywords: rec[2], Category: rec[3], Releases: rec[4]})
	}
	return rows, nil
}
