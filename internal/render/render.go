package render

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rickgao/tsingest/internal/analytics"
	"github.com/rickgao/tsingest/internal/ingest"
	"github.com/rickgao/tsingest/internal/model"
	"github.com/rickgao/tsingest/internal/scheduler"
)

const nullValue = "NULL"

var printer = message.NewPrinter(language.English)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)

	// Don't uppercase the header and footer values.
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	return t
}

// Summaries writes one row per ingest run.
func Summaries(w io.Writer, summaries ...*ingest.Summary) {
	t := newTable(w, "Ingest runs")
	t.AppendHeader(table.Row{"source", "state", "parsed", "rejected", "filtered", "written", "conflicted", "watermark", "duration"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})

	for _, s := range summaries {
		state := s.State.String()
		if s.NothingToDo {
			state += " (nothing to do)"
		}
		t.AppendRow(table.Row{
			s.Source,
			state,
			Count(s.RowsParsed),
			Count(s.RowsRejected),
			Count(s.RowsFiltered),
			Count(s.RowsWritten),
			Count(s.RowsConflicted),
			s.WatermarkAfter.String(),
			s.Duration.Round(time.Millisecond).String(),
		})
	}
	t.Render()
}

// Statuses writes the scheduler's per-source status.
func Statuses(w io.Writer, statuses []scheduler.Status) {
	t := newTable(w, "Sources")
	t.AppendHeader(table.Row{"source", "runs", "failures", "last run", "last state", "watermark", "error"})

	for _, st := range statuses {
		lastRun, state, wm, errText := "never", "", "", ""
		if !st.LastRun.IsZero() {
			lastRun = st.LastRun.UTC().Format(model.TimeLayout)
		}
		if st.Last != nil {
			state = st.Last.State.String()
			wm = st.Last.WatermarkAfter.String()
		}
		if st.LastErr != nil {
			errText = st.LastErr.Error()
		}
		t.AppendRow(table.Row{st.Source, Count(st.Runs), Count(st.Failures), lastRun, state, wm, errText})
	}
	t.Render()
}

// Table writes an analytics result.
func Table(w io.Writer, res *analytics.Table) {
	t := newTable(w, res.Title)

	header := make(table.Row, len(res.Columns))
	for i, c := range res.Columns {
		header[i] = c
	}
	t.AppendHeader(header)

	for _, row := range res.Rows {
		out := make(table.Row, len(row))
		for i, v := range row {
			out[i] = Cell(v)
		}
		t.AppendRow(out)
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%s rows", Count(len(res.Rows)))})
	t.Render()
}

// Cell formats one analytics value.
func Cell(v any) string {
	switch v := v.(type) {
	case nil:
		return nullValue
	case time.Time:
		return v.UTC().Format(model.TimeLayout)
	case string:
		return v
	case decimal.Decimal:
		return v.String()
	case decimal.NullDecimal:
		if !v.Valid {
			return nullValue
		}
		return v.Decimal.String()
	case float64:
		if math.IsNaN(v) {
			return ""
		}
		return strconv.FormatFloat(v, 'f', 6, 64)
	case int:
		return Count(v)
	default:
		return fmt.Sprint(v)
	}
}

// Count formats n with thousands separators.
func Count(n int) string {
	return printer.Sprintf("%d", n)
}
