package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseSeverity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Severity
		err  bool
	}{
		{"error", SeverityError, false},
		{"WARNING", SeverityWarning, false},
		{"warn", SeverityWarning, false},
		{" info ", SeverityInfo, false},
		{"verbose", SeverityVerbose, false},
		{"off", SeverityOff, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSeverity(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigRuleYAML(t *testing.T) {
	t.Parallel()

	var rules map[string]ConfigRule
	require.NoError(t, yaml.Unmarshal([]byte("DEAL021:\n  severity: warning\nDEAL091:\n  severity: off\n"), &rules))
	assert.Equal(t, SeverityWarning, rules["DEAL021"].Severity)
	assert.Equal(t, SeverityOff, rules["DEAL091"].Severity)

	out, err := yaml.Marshal(ConfigRule{Severity: SeverityInfo})
	require.NoError(t, err)
	assert.Equal(t, "severity: INFO\n", string(out))

	assert.Error(t, yaml.Unmarshal([]byte("severity: loud\n"), &ConfigRule{}))
}

func TestShown(t *testing.T) {
	t.Parallel()

	assert.True(t, SeverityError.Shown(false))
	assert.False(t, SeverityVerbose.Shown(false))
	assert.True(t, SeverityVerbose.Shown(true))
	assert.False(t, SeverityOff.Shown(true))
}
