package formatter

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
	"unicode"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/gnolang/dealint/internal"
	"github.com/gnolang/dealint/internal/matcher"
	"github.com/gnolang/dealint/internal/report"
)

const tabWidth = 8

var (
	errorStyle    = color.New(color.FgRed, color.Bold)
	warningStyle  = color.New(color.FgHiYellow, color.Bold)
	infoStyle     = color.New(color.FgHiCyan, color.Bold)
	ruleStyle     = color.New(color.FgYellow, color.Bold)
	fileStyle     = color.New(color.FgCyan, color.Bold)
	lineStyle     = color.New(color.FgHiBlue, color.Bold)
	messageStyle  = color.New(color.FgRed, color.Bold)
	contractStyle = color.New(color.FgGreen, color.Bold)
	noStyle       = color.New(color.FgWhite)
)

// SetColor turns colored output on or off. Mode "auto" enables it only
// when out is a terminal.
func SetColor(mode string, out *os.File) {
	switch mode {
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	default:
		fd := out.Fd()
		color.NoColor = os.Getenv("NO_COLOR") != "" ||
			!(isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))
	}
}

// issueFormatter is implemented by the templates of each record kind.
type issueFormatter interface {
	IssueTemplate() string
}

// getIssueFormatter returns the template for kind. Kinds without a
// dedicated template use the general one.
func getIssueFormatter(kind string) issueFormatter {
	switch kind {
	case matcher.UndeclaredException.String(), matcher.PurityViolation.String():
		return &ChainIssueFormatter{}
	case report.KindCycleNotConverged:
		return &CycleIssueFormatter{}
	default:
		return &GeneralIssueFormatter{}
	}
}

// GenerateFormattedIssue renders records of one file with a snippet of the
// offending source.
func GenerateFormattedIssue(recs []report.Record, snippet *internal.SourceCode) string {
	var builder strings.Builder
	for _, rec := range recs {
		builder.WriteString(buildIssue(rec, snippet, getIssueFormatter(rec.Kind)))
	}
	return builder.String()
}

/***** Issue Formatter Builder *****/

type IssueData struct {
	Severity        string
	Kind            string
	Code            string
	Filename        string
	Padding         string
	Line            int
	Column          int
	MaxLineNumWidth int
	Message         string
	Contract        string
	Chain           []string
	SnippetLines    []string
	CommonIndent    string
}

func buildIssue(rec report.Record, snippet *internal.SourceCode, formatter issueFormatter) string {
	maxLineNumWidth := calculateMaxLineNumWidth(rec.Line)
	padding := strings.Repeat(" ", maxLineNumWidth+1)

	var lines []string
	if snippet != nil {
		lines = snippet.Lines
	}
	commonIndent := ""
	if isValidLine(rec.Line, lines) {
		commonIndent = findCommonIndent(lines[rec.Line-1 : rec.Line])
	}

	data := IssueData{
		Severity:        rec.Level.String(),
		Kind:            rec.Kind,
		Code:            rec.Code,
		Filename:        rec.File,
		Line:            rec.Line,
		Column:          rec.Column,
		Message:         rec.Message,
		Contract:        rec.Contract,
		Chain:           rec.Chain,
		MaxLineNumWidth: maxLineNumWidth,
		Padding:         padding,
		CommonIndent:    commonIndent,
		SnippetLines:    lines,
	}

	funcMap := template.FuncMap{
		"header":              header,
		"snippet":             codeSnippet,
		"underlineAndMessage": underlineAndMessage,
		"contract":            contractNote,
		"chain":               chainNote,
	}

	tmpl := template.Must(template.New("issue").Funcs(funcMap).Parse(formatter.IssueTemplate()))

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("Error formatting issue: %v", err)
	}
	return buf.String()
}

// utils functions used in the text templates

func header(code, kind, severity string, maxLineNumWidth int, filename string, line, column int) string {
	var endString string
	switch severity {
	case "ERROR":
		endString = errorStyle.Sprint("error: ")
	case "WARNING":
		endString = warningStyle.Sprint("warning: ")
	default:
		endString = infoStyle.Sprintf("%s: ", strings.ToLower(severity))
	}

	endString += ruleStyle.Sprintf("%s", code)
	endString += noStyle.Sprintf(" (%s)\n", kind)

	padding := strings.Repeat(" ", maxLineNumWidth)
	endString += lineStyle.Sprintf("%s--> ", padding)
	endString += fileStyle.Sprintf("%s:%d:%d\n", filename, line, column)

	return endString
}

func codeSnippet(snippetLines []string, line, maxLineNumWidth int, commonIndent, padding string) string {
	if !isValidLine(line, snippetLines) {
		return ""
	}
	endString := lineStyle.Sprintf("%s|\n", padding)
	text := strings.TrimPrefix(snippetLines[line-1], commonIndent)
	lineNum := fmt.Sprintf("%*d", maxLineNumWidth, line)
	endString += lineStyle.Sprintf("%s | ", lineNum)
	endString += text + "\n"
	return endString
}

// underlineAndMessage marks the source from the reported column to the
// end of the line.
func underlineAndMessage(message, padding string, line, column int, snippetLines []string, commonIndent string) string {
	if !isValidLine(line, snippetLines) {
		return lineStyle.Sprintf("%s= ", padding) + messageStyle.Sprintf("%s\n", message)
	}

	src := strings.TrimRightFunc(snippetLines[line-1], unicode.IsSpace)
	indentWidth := calculateVisualColumn(commonIndent, len(commonIndent)+1)

	start := calculateVisualColumn(src, column) - indentWidth
	if start < 0 {
		start = 0
	}
	end := calculateVisualColumn(src, len(src)+1) - indentWidth
	length := end - start
	if length < 1 {
		length = 1
	}

	endString := lineStyle.Sprintf("%s| ", padding)
	endString += strings.Repeat(" ", start)
	endString += messageStyle.Sprintf("%s\n", strings.Repeat("~", length))
	endString += lineStyle.Sprintf("%s= ", padding)
	endString += messageStyle.Sprintf("%s\n", message)
	return endString
}

func contractNote(contract, padding string) string {
	if contract == "" {
		return ""
	}
	// Multi-line decorators are shown by their first line.
	if i := strings.IndexByte(contract, '\n'); i >= 0 {
		contract = contract[:i] + " ..."
	}
	return lineStyle.Sprintf("%s= ", padding) + contractStyle.Sprint("contract: ") + noStyle.Sprintf("%s\n", contract)
}

func chainNote(chain []string, padding string) string {
	if len(chain) == 0 {
		return ""
	}
	return lineStyle.Sprintf("%s= ", padding) + contractStyle.Sprint("via: ") + noStyle.Sprintf("%s\n", strings.Join(chain, " -> "))
}

func isValidLine(line int, snippetLines []string) bool {
	return line > 0 && line <= len(snippetLines)
}

func calculateMaxLineNumWidth(line int) int {
	return len(fmt.Sprintf("%d", line))
}

// calculateVisualColumn calculates the visual column position
// in a string. taking into account tab characters.
func calculateVisualColumn(line string, column int) int {
	if column < 0 {
		return 0
	}
	visualColumn := 0
	for i, ch := range line {
		if i+1 == column {
			break
		}
		if ch == '\t' {
			visualColumn += tabWidth - (visualColumn % tabWidth)
		} else {
			visualColumn++
		}
	}
	return visualColumn
}

// findCommonIndent finds the common indent in the code snippet.
func findCommonIndent(lines []string) string {
	if len(lines) == 0 {
		return ""
	}

	// find first non-empty line's indent
	firstIndent := make([]rune, 0)
	for _, line := range lines {
		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
		if trimmed != "" {
			firstIndent = []rune(line[:len(line)-len(trimmed)])
			break
		}
	}

	if len(firstIndent) == 0 {
		return ""
	}

	for _, line := range lines {
		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
		if trimmed == "" {
			continue
		}

		currentIndent := []rune(line[:len(line)-len(trimmed)])
		firstIndent = commonPrefix(firstIndent, currentIndent)

		if len(firstIndent) == 0 {
			break
		}
	}

	return string(firstIndent)
}

// commonPrefix finds the common prefix of two strings.
func commonPrefix(a, b []rune) []rune {
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:minLen]
}
