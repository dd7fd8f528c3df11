// Package report renders what a run did: a progress bar per pass while it
// runs and a per-file table when it finishes.
package report

import (
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	bar "github.com/schollz/progressbar/v3"

	"github.com/bleemesser/icloudimport/classify"
	"github.com/bleemesser/icloudimport/media"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Progress returns a progress factory drawing to w, or nil when w is not a
// terminal so the engine falls back to no progress output.
func Progress(w *os.File) classify.ProgressFunc {
	if !IsTerminal(w) {
		return nil
	}
	return func(total int, description string) classify.Progress {
		return bar.NewOptions(total,
			bar.OptionSetWriter(w),
			bar.OptionSetDescription(description),
			bar.OptionShowCount(),
			bar.OptionClearOnFinish(),
		)
	}
}

// Totals summarises a run.
type Totals struct {
	Files    int
	Imported int
	Paired   int
	Skipped  int
	Failed   int
}

// Summarize counts outcomes.
func Summarize(outcomes []media.Outcome) Totals {
	var t Totals
	for _, o := range outcomes {
		t.Files++
		if o.Imported {
			t.Imported++
		}
		if o.Paired {
			t.Paired++
		}
		if o.Skipped {
			t.Skipped++
		}
		if o.Err != "" || (!o.Imported && !o.Skipped) {
			t.Failed++
		}
	}
	return t
}

// Write renders outcomes as a table.
func Write(w io.Writer, outcomes []media.Outcome) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"File", "Pass", "Library", "Live Photo", "Imported", "Albums", "Error"})
	for _, o := range outcomes {
		library := "-"
		if o.Queried {
			library = o.Match.String()
		}
		live := "-"
		if o.Identifier != "" {
			live = o.Identifier.String()
			if !o.Paired {
				live += " (video failed)"
			}
		}
		imported := yesNo(o.Imported)
		if o.Skipped {
			imported = "skipped"
		}
		tw.AppendRow(table.Row{o.Name, string(o.Pass), library, live, imported, strings.Join(o.Albums, ", "), o.Err})
	}
	t := Summarize(outcomes)
	tw.AppendFooter(table.Row{"Total", t.Files, "", t.Paired, t.Imported, "", t.Failed})
	tw.Render()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
