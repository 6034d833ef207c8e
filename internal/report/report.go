// Package report turns violations and run degradations into diagnostic
// records and writes them out.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/gnolang/dealint/internal/contract"
	"github.com/gnolang/dealint/internal/index"
	"github.com/gnolang/dealint/internal/matcher"
	"github.com/gnolang/dealint/internal/pyast"
	tt "github.com/gnolang/dealint/internal/types"
)

// Kinds of records that do not come from the matcher.
const (
	KindParseError        = "ParseError"
	KindMalformedContract = "MalformedContract"
	KindCycleNotConverged = "CycleNotConverged"
)

const (
	CodeMalformed = "DEAL003"
	CodeParse     = "DEAL090"
	CodeCycle     = "DEAL092"
)

// Record is one rendered diagnostic.
type Record struct {
	File     string      `json:"file"`
	Line     int         `json:"line"`
	Column   int         `json:"column"`
	Kind     string      `json:"kind"`
	Code     string      `json:"code"`
	Level    tt.Severity `json:"level"`
	Message  string      `json:"message"`
	Contract string      `json:"contract,omitempty"`
	Func     string      `json:"func,omitempty"`
	Chain    []string    `json:"chain,omitempty"`
}

// String renders the record in the line-oriented format.
func (r Record) String() string {
	return fmt.Sprintf("%s:%d:%d: %s %s", r.File, r.Line, r.Column, r.Code, r.Message)
}

// Render converts violations to records at their default level.
func Render(vs []matcher.Violation) []Record {
	out := make([]Record, 0, len(vs))
	for _, v := range vs {
		level := tt.SeverityError
		switch {
		case v.Kind == matcher.UnresolvedCallee:
			level = tt.SeverityVerbose
		case v.LowConfidence:
			level = tt.SeverityWarning
		}
		out = append(out, Record{
			File:     v.Path,
			Line:     v.Pos.Line,
			Column:   v.Pos.Column,
			Kind:     v.Kind.String(),
			Code:     v.Code,
			Level:    level,
			Message:  v.Text(),
			Contract: v.Contract,
			Func:     v.Func,
			Chain:    v.Chain,
		})
	}
	return out
}

// ParseFailure reports a unit that was skipped.
func ParseFailure(err *pyast.ParseError) Record {
	return Record{
		File:    err.Path,
		Line:    err.Line,
		Column:  err.Column,
		Kind:    KindParseError,
		Code:    CodeParse,
		Level:   tt.SeverityWarning,
		Message: "syntax error: " + err.Msg,
	}
}

// Malformed reports a dropped contract.
func Malformed(m contract.Malformed) Record {
	return Record{
		File:     m.Path,
		Line:     m.Pos.Line,
		Column:   m.Pos.Column,
		Kind:     KindMalformedContract,
		Code:     CodeMalformed,
		Level:    tt.SeverityWarning,
		Message:  fmt.Sprintf("malformed contract (%s): %s", m.Decorator, m.Reason),
		Contract: m.Source,
	}
}

// Cycle reports a recursive group whose summaries were widened to unknown.
func Cycle(c index.Cycle) Record {
	return Record{
		File:    c.Path,
		Line:    c.Pos.Line,
		Column:  c.Pos.Column,
		Kind:    KindCycleNotConverged,
		Code:    CodeCycle,
		Level:   tt.SeverityVerbose,
		Message: fmt.Sprintf("recursion did not converge after %d iterations (%s)", c.Iterations, strings.Join(c.Members, ", ")),
		Chain:   c.Members,
	}
}

// Rules overrides record levels by code or by kind name. A code entry
// wins over a kind entry.
type Rules map[string]tt.ConfigRule

// Apply sets configured levels and drops records that are off or, unless
// verbose, at verbose level. The result is sorted.
func (r Rules) Apply(recs []Record, verbose bool) []Record {
	out := recs[:0:0]
	for _, rec := range recs {
		if rule, ok := r[rec.Code]; ok {
			rec.Level = rule.Severity
		} else if rule, ok := r[rec.Kind]; ok {
			rec.Level = rule.Severity
		}
		if rec.Level.Shown(verbose) {
			out = append(out, rec)
		}
	}
	Sort(out)
	return out
}

// Sort orders records by file, position, kind priority, then code.
func Sort(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		if pa, pb := priority(a.Kind), priority(b.Kind); pa != pb {
			return pa < pb
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Message < b.Message
	})
}

// priority ranks violation kinds in matcher order, ahead of the run
// degradations.
func priority(kind string) int {
	if k, ok := matcher.ParseKind(kind); ok {
		return int(k)
	}
	return len(matcher.Kinds())
}

// Failing reports whether any record is an error or a warning, or a
// contract violation shown at info level.
func Failing(recs []Record) bool {
	for _, r := range recs {
		switch r.Level {
		case tt.SeverityError, tt.SeverityWarning:
			return true
		case tt.SeverityInfo:
			if k, ok := matcher.ParseKind(r.Kind); ok && k != matcher.UnresolvedCallee {
				return true
			}
		}
	}
	return false
}

// WriteText writes one line per record.
func WriteText(w io.Writer, recs []Record) error {
	for _, r := range recs {
		if _, err := fmt.Fprintln(w, r.String()); err != nil {
			return err
		}
	}
	return nil
}

// Envelope is the JSON document of one run.
type Envelope struct {
	RunID   string   `json:"run_id"`
	Records []Record `json:"records"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// WriteJSON writes the records of run id as an indented JSON envelope.
func WriteJSON(w io.Writer, id string, recs []Record) error {
	if recs == nil {
		recs = []Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Envelope{RunID: id, Records: recs}); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}
