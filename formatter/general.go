package formatter

type GeneralIssueFormatter struct{}

func (f *GeneralIssueFormatter) IssueTemplate() string {
	return `{{header .Code .Kind .Severity .MaxLineNumWidth .Filename .Line .Column -}}
{{snippet .SnippetLines .Line .MaxLineNumWidth .CommonIndent .Padding -}}
{{underlineAndMessage .Message .Padding .Line .Column .SnippetLines .CommonIndent -}}
{{contract .Contract .Padding}}
`
}

// ChainIssueFormatter also shows the calls an effect travelled through.
type ChainIssueFormatter struct{}

func (f *ChainIssueFormatter) IssueTemplate() string {
	return `{{header .Code .Kind .Severity .MaxLineNumWidth .Filename .Line .Column -}}
{{snippet .SnippetLines .Line .MaxLineNumWidth .CommonIndent .Padding -}}
{{underlineAndMessage .Message .Padding .Line .Column .SnippetLines .CommonIndent -}}
{{chain .Chain .Padding -}}
{{contract .Contract .Padding}}
`
}

// CycleIssueFormatter reports a recursive group without a snippet.
type CycleIssueFormatter struct{}

func (f *CycleIssueFormatter) IssueTemplate() string {
	return `{{header .Code .Kind .Severity .MaxLineNumWidth .Filename .Line .Column -}}
{{underlineAndMessage .Message .Padding 0 .Column .SnippetLines .CommonIndent}}
`
}
