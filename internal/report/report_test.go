package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/dealint/internal/contract"
	"github.com/gnolang/dealint/internal/index"
	"github.com/gnolang/dealint/internal/matcher"
	"github.com/gnolang/dealint/internal/pyast"
	tt "github.com/gnolang/dealint/internal/types"
)

var violations = []matcher.Violation{
	{
		Kind:     matcher.UndeclaredException,
		Code:     matcher.CodeRaises,
		Func:     "pkg.f",
		Path:     "pkg.py",
		Pos:      pyast.Pos{Line: 8, Column: 5},
		Message:  "raises contract error",
		Value:    "TypeError",
		Contract: "deal.raises(ValueError)",
	},
	{
		Kind:          matcher.PostconditionMayFail,
		Code:          matcher.CodePost,
		Path:          "pkg.py",
		Pos:           pyast.Pos{Line: 3, Column: 5},
		Message:       "post contract error",
		LowConfidence: true,
	},
	{
		Kind:    matcher.UnresolvedCallee,
		Code:    matcher.CodeUnresolved,
		Path:    "pkg.py",
		Pos:     pyast.Pos{Line: 2, Column: 12},
		Message: "cannot resolve callee",
		Value:   "lib.compute",
	},
}

func TestRender(t *testing.T) {
	t.Parallel()

	recs := Render(violations)
	require.Len(t, recs, 3)
	assert.Equal(t, Record{
		File:     "pkg.py",
		Line:     8,
		Column:   5,
		Kind:     "UndeclaredException",
		Code:     "DEAL021",
		Level:    tt.SeverityError,
		Message:  "raises contract error (TypeError)",
		Contract: "deal.raises(ValueError)",
		Func:     "pkg.f",
	}, recs[0])
	assert.Equal(t, tt.SeverityWarning, recs[1].Level)
	assert.Equal(t, tt.SeverityVerbose, recs[2].Level)
	assert.Equal(t, "pkg.py:8:5: DEAL021 raises contract error (TypeError)", recs[0].String())

	assert.Equal(t, recs, Render(violations))
}

func TestApply(t *testing.T) {
	t.Parallel()

	recs := Render(violations)
	shown := Rules{}.Apply(recs, false)
	require.Len(t, shown, 2)
	assert.Equal(t, 3, shown[0].Line)
	assert.Equal(t, 8, shown[1].Line)

	assert.Len(t, Rules{}.Apply(recs, true), 3)

	rules := Rules{
		"DEAL021":              {Severity: tt.SeverityOff},
		"PostconditionMayFail": {Severity: tt.SeverityInfo},
		"DEAL012":              {Severity: tt.SeverityError},
	}
	shown = rules.Apply(recs, false)
	require.Len(t, shown, 1)
	assert.Equal(t, tt.SeverityError, shown[0].Level)
	assert.Len(t, recs, 3, "input is not modified")
}

func TestFailing(t *testing.T) {
	t.Parallel()

	assert.False(t, Failing(nil))
	assert.False(t, Failing([]Record{{Level: tt.SeverityInfo}}))
	assert.True(t, Failing([]Record{{Kind: "PostconditionMayFail", Level: tt.SeverityInfo}}))
	assert.False(t, Failing([]Record{{Kind: "UnresolvedCallee", Level: tt.SeverityInfo}}))
	assert.False(t, Failing([]Record{{Kind: "PostconditionMayFail", Level: tt.SeverityVerbose}}))
	assert.True(t, Failing(Render(violations)))
}

func TestSortByKindPriority(t *testing.T) {
	t.Parallel()

	recs := []Record{
		{File: "m.py", Line: 9, Column: 12, Kind: "PreconditionMayFail", Code: "DEAL011"},
		{File: "m.py", Line: 9, Column: 12, Kind: KindMalformedContract, Code: "DEAL003"},
		{File: "m.py", Line: 9, Column: 12, Kind: "PurityViolation", Code: "DEAL046"},
		{File: "m.py", Line: 9, Column: 12, Kind: "UndeclaredException", Code: "DEAL021"},
		{File: "m.py", Line: 2, Column: 1, Kind: "AssertMayFail", Code: "DEAL031"},
	}
	Sort(recs)

	var codes []string
	for _, r := range recs {
		codes = append(codes, r.Code)
	}
	assert.Equal(t, []string{"DEAL031", "DEAL021", "DEAL046", "DEAL011", "DEAL003"}, codes)
}

func TestDegradations(t *testing.T) {
	t.Parallel()

	p := ParseFailure(&pyast.ParseError{Path: "bad.py", Line: 3, Column: 1, Msg: "unexpected token"})
	assert.Equal(t, "bad.py:3:1: DEAL090 syntax error: unexpected token", p.String())
	assert.Equal(t, tt.SeverityWarning, p.Level)

	m := Malformed(contract.Malformed{
		Path:      "m.py",
		Pos:       pyast.Pos{Line: 4, Column: 2},
		Decorator: "deal.post",
		Source:    "deal.post(lambda a, b: a)",
		Reason:    "postcondition takes exactly one parameter",
	})
	assert.Equal(t, KindMalformedContract, m.Kind)
	assert.Equal(t, "m.py:4:2: DEAL003 malformed contract (deal.post): postcondition takes exactly one parameter", m.String())

	c := Cycle(index.Cycle{Members: []string{"m.even", "m.odd"}, Iterations: 8, Path: "m.py", Pos: pyast.Pos{Line: 2, Column: 1}})
	assert.Equal(t, tt.SeverityVerbose, c.Level)
	assert.Equal(t, "recursion did not converge after 8 iterations (m.even, m.odd)", c.Message)
}

func TestWriters(t *testing.T) {
	t.Parallel()

	recs := Rules{}.Apply(Render(violations), false)

	var text bytes.Buffer
	require.NoError(t, WriteText(&text, recs))
	assert.Equal(t, "pkg.py:3:5: DEAL012 post contract error\npkg.py:8:5: DEAL021 raises contract error (TypeError)\n", text.String())

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, "run-1", recs))
	var env Envelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	assert.Equal(t, "run-1", env.RunID)
	require.Len(t, env.Records, 2)
	assert.Equal(t, tt.SeverityWarning, env.Records[0].Level)
	assert.Contains(t, buf.String(), `"level": "WARNING"`)

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, NewRunID(), nil))
	assert.Contains(t, buf.String(), `"records": []`)
	assert.Len(t, NewRunID(), 36)
}
