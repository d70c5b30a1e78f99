package migration

import (
	"fmt"
	"strings"
	"time"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/syscat"
)

// Outcome is what happened to a grain during a run.
type Outcome string

const (
	Migrated Outcome = "migrated"
	Skipped  Outcome = "skipped"
	Locked   Outcome = "locked"
	Failed   Outcome = "failed"
)

// GrainResult records one grain's processing.
type GrainResult struct {
	Grain   string
	Version string
	Outcome Outcome
	// State is the grain state persisted at the end of processing.
	State      syscat.GrainState
	Statements int
	Elapsed    time.Duration
	Err        string

	err *GrainError
}

// Cause returns the failure behind a Failed result.
func (r GrainResult) Cause() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

// Report summarizes a run in processing order.
type Report struct {
	RunID    string
	Dialect  dialect.Name
	Started  time.Time
	Finished time.Time
	Grains   []GrainResult
}

func (r *Report) add(res GrainResult) {
	r.Grains = append(r.Grains, res)
}

// Grain returns the result for the named grain.
func (r *Report) Grain(name string) (GrainResult, bool) {
	for _, g := range r.Grains {
		if g.Grain == name {
			return g, true
		}
	}
	return GrainResult{}, false
}

// Statements is the total number of DDL statements issued.
func (r *Report) Statements() int {
	n := 0
	for _, g := range r.Grains {
		n += g.Statements
	}
	return n
}

// Failed lists the grains that ended in ERROR.
func (r *Report) Failed() []GrainResult {
	var out []GrainResult
	for _, g := range r.Grains {
		if g.Outcome == Failed {
			out = append(out, g)
		}
	}
	return out
}

// Count returns how many grains had the given outcome.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, g := range r.Grains {
		if g.Outcome == o {
			n++
		}
	}
	return n
}

// Markdown renders the report as a markdown document.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Migration report\n\n")
	fmt.Fprintf(&b, "- run: `%s`\n- dialect: %s\n- started: %s\n- duration: %s\n- statements: %d\n\n",
		r.RunID, r.Dialect, r.Started.Format(time.RFC3339), r.Finished.Sub(r.Started).Round(time.Millisecond), r.Statements())
	b.WriteString("| grain | version | outcome | state | statements | elapsed |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, g := range r.Grains {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %d | %s |\n",
			g.Grain, g.Version, g.Outcome, g.State, g.Statements, g.Elapsed.Round(time.Millisecond))
	}
	if failed := r.Failed(); len(failed) > 0 {
		b.WriteString("\n## Failures\n")
		for _, g := range failed {
			fmt.Fprintf(&b, "\n### %s\n\n```\n%s\n```\n", g.Grain, g.Err)
		}
	}
	return b.String()
}
