package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portrisk/internal/errors"
	"github.com/anstrom/portrisk/internal/risk"
)

func TestParsePortArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []int
		wantErr errors.ErrorCode
	}{
		{"separate args", []string{"22", "80", "443"}, []int{22, 80, 443}, ""},
		{"comma list", []string{"21,23", "3389"}, []int{21, 23, 3389}, ""},
		{"sorts and drops repeats", []string{"80", "22", "80"}, []int{22, 80}, ""},
		{"same port repeated", []string{"80", "80,80"}, []int{80}, ""},
		{"spaces and empty fields", []string{" 22 ,", ",443"}, []int{22, 443}, ""},
		{"not a number", []string{"ssh"}, nil, errors.CodeValidation},
		{"zero", []string{"0"}, nil, errors.CodeInvalidRange},
		{"too high", []string{"65536"}, nil, errors.CodeInvalidRange},
		{"only commas", []string{","}, nil, errors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePortArgs(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderAssessment(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, renderAssessment(&out, outputTable, risk.Classify([]int{22, 80, 9999})))

		text := out.String()
		assert.Contains(t, text, "SSH")
		assert.Contains(t, text, "HTTP")
		assert.NotContains(t, text, "9999")
		assert.Contains(t, text, "Risky ports: 1")
		assert.Contains(t, text, "Overall risk: Medium")
	})

	t.Run("no known ports", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, renderAssessment(&out, outputTable, risk.Classify([]int{9999})))
		assert.Contains(t, out.String(), "None of the given ports")
		assert.Contains(t, out.String(), "Overall risk: Low")
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, renderAssessment(&out, outputJSON, risk.Classify([]int{21, 23, 3306})))

		var got risk.Assessment
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.Len(t, got.Entries, 3)
		assert.Equal(t, 3, got.RiskyCount)
		assert.Equal(t, risk.High, got.Overall)
	})
}

func TestRenderTable(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, renderTable(&out, outputTable, risk.Table()))
	for _, entry := range risk.Table() {
		assert.Contains(t, out.String(), entry.Service)
	}

	out.Reset()
	require.NoError(t, renderTable(&out, outputJSON, risk.Table()))
	var entries []risk.Entry
	require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
	assert.Equal(t, risk.Table(), entries)
}

func TestValidateOutputFormat(t *testing.T) {
	assert.NoError(t, validateOutputFormat(outputTable))
	assert.NoError(t, validateOutputFormat(outputJSON))
	assert.True(t, errors.IsCode(validateOutputFormat("yaml"), errors.CodeValidation))
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		contains []string
		wantErr  bool
	}{
		{"classify", []string{"classify", "22", "80", "443"}, []string{"SSH", "Overall risk: Medium"}, false},
		{"classify json", []string{"classify", "23", "--output", "json"}, []string{`"overall_risk"`}, false},
		{"classify without ports", []string{"classify"}, nil, true},
		{"ports", []string{"ports"}, []string{"Telnet", "PostgreSQL"}, false},
		{"version", []string{"version"}, []string{"portrisk", "commit:"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			classifyOutput, portsOutput = outputTable, outputTable

			var out bytes.Buffer
			rootCmd.SetOut(&out)
			rootCmd.SetErr(&bytes.Buffer{})
			rootCmd.SetArgs(tt.args)
			t.Cleanup(func() {
				rootCmd.SetOut(nil)
				rootCmd.SetErr(nil)
				rootCmd.SetArgs(nil)
			})

			err := rootCmd.Execute()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, out.String(), s)
			}
		})
	}
}

func TestClassifyCommand_RepeatedPorts(t *testing.T) {
	resetViper(t)
	classifyOutput = outputTable
	t.Cleanup(func() { classifyOutput = outputTable })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"classify", "80", "80", "80", "--output", "json"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	var got risk.Assessment
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got.Entries, 1)
	assert.Equal(t, 80, got.Entries[0].Port)
	assert.Equal(t, 1, got.RiskyCount)
	assert.Equal(t, risk.Medium, got.Overall)
}
