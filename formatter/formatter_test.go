package formatter

import (
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/gnolang/dealint/internal"
	"github.com/gnolang/dealint/internal/report"
	tt "github.com/gnolang/dealint/internal/types"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

var code = &internal.SourceCode{
	Lines: []string{
		"import deal",
		"",
		"def g():",
		"    raise TypeError",
		"",
		"@deal.raises(ValueError)",
		"def f():",
		"    g()",
		"",
		"",
		"def h(x):",
		"\treturn x",
	},
}

func TestGenerateFormattedIssue(t *testing.T) {
	t.Parallel()

	recs := []report.Record{
		{
			File:     "pkg.py",
			Line:     8,
			Column:   5,
			Kind:     "UndeclaredException",
			Code:     "DEAL021",
			Level:    tt.SeverityError,
			Message:  "raises contract error (TypeError)",
			Contract: "deal.raises(ValueError)",
			Chain:    []string{"pkg.g"},
		},
		{
			File:    "pkg.py",
			Line:    12,
			Column:  2,
			Kind:    "PostconditionMayFail",
			Code:    "DEAL012",
			Level:   tt.SeverityWarning,
			Message: "post contract error",
		},
	}

	expected := `error: DEAL021 (UndeclaredException)
 --> pkg.py:8:5
  |
8 | g()
  | ~~~
  = raises contract error (TypeError)
  = via: pkg.g
  = contract: deal.raises(ValueError)

warning: DEAL012 (PostconditionMayFail)
  --> pkg.py:12:2
   |
12 | return x
   | ~~~~~~~~
   = post contract error

`
	assert.Equal(t, expected, GenerateFormattedIssue(recs, code))
}

func TestFormatWithoutSource(t *testing.T) {
	t.Parallel()

	recs := []report.Record{
		{
			File:    "m.py",
			Line:    2,
			Column:  1,
			Kind:    report.KindCycleNotConverged,
			Code:    report.CodeCycle,
			Level:   tt.SeverityVerbose,
			Message: "recursion did not converge after 8 iterations (m.a, m.b)",
		},
		{
			File:     "m.py",
			Line:     40,
			Column:   1,
			Kind:     "MalformedContract",
			Code:     "DEAL003",
			Level:    tt.SeverityWarning,
			Message:  "malformed contract (deal.pre): validator is not a lambda",
			Contract: "deal.pre(\n    check,\n)",
		},
	}

	expected := `verbose: DEAL092 (CycleNotConverged)
 --> m.py:2:1
  = recursion did not converge after 8 iterations (m.a, m.b)

warning: DEAL003 (MalformedContract)
  --> m.py:40:1
   = malformed contract (deal.pre): validator is not a lambda
   = contract: deal.pre( ...

`
	assert.Equal(t, expected, GenerateFormattedIssue(recs, code))
	assert.Equal(t, expected, GenerateFormattedIssue(recs, nil))
}

func TestCalculateVisualColumn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line   string
		column int
		want   int
	}{
		{"abc", 1, 0},
		{"abc", 3, 2},
		{"\tx", 2, 8},
		{"  \tx", 4, 8},
		{"abc", -1, 0},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, calculateVisualColumn(tc.line, tc.column), "%q:%d", tc.line, tc.column)
	}
}

func TestFindCommonIndent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "    ", findCommonIndent([]string{"    a", "", "      b"}))
	assert.Equal(t, "", findCommonIndent([]string{"a", "  b"}))
	assert.Equal(t, "", findCommonIndent(nil))
}
