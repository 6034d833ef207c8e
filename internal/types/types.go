package types

import (
	"fmt"
	"strings"
)

// Severity is the level a diagnostic is reported at.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
	// SeverityVerbose diagnostics are shown only with --verbose.
	SeverityVerbose
	// SeverityOff disables a rule.
	SeverityOff
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	case SeverityInfo:
		return "INFO"
	case SeverityVerbose:
		return "VERBOSE"
	case SeverityOff:
		return "OFF"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// ParseSeverity reads a severity name, ignoring case.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return SeverityError, nil
	case "WARNING", "WARN":
		return SeverityWarning, nil
	case "INFO":
		return SeverityInfo, nil
	case "VERBOSE":
		return SeverityVerbose, nil
	case "OFF", "NONE":
		return SeverityOff, nil
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Shown reports whether a diagnostic at s is printed.
func (s Severity) Shown(verbose bool) bool {
	switch s {
	case SeverityOff:
		return false
	case SeverityVerbose:
		return verbose
	}
	return true
}

// ConfigRule is the per-rule entry of the configuration file.
type ConfigRule struct {
	Severity Severity `yaml:"severity" toml:"severity" mapstructure:"severity"`
}
