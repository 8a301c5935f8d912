package scanning

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portrisk/internal/errors"
)

func TestTarget_Validate(t *testing.T) {
	tests := []struct {
		name     string
		target   Target
		wantCode errors.ErrorCode
	}{
		{"valid range", Target{Host: "localhost", StartPort: 1, EndPort: 1024}, ""},
		{"single port", Target{Host: "localhost", StartPort: 22, EndPort: 22}, ""},
		{"full range", Target{Host: "10.0.0.1", StartPort: 1, EndPort: 65535}, ""},
		{"empty host", Target{Host: "  ", StartPort: 1, EndPort: 10}, errors.CodeTargetInvalid},
		{"inverted range", Target{Host: "localhost", StartPort: 5, EndPort: 1}, errors.CodeInvalidRange},
		{"zero start", Target{Host: "localhost", StartPort: 0, EndPort: 10}, errors.CodeInvalidRange},
		{"end above max", Target{Host: "localhost", StartPort: 1, EndPort: 65536}, errors.CodeInvalidRange},
		{"negative concurrency", Target{Host: "localhost", StartPort: 1, EndPort: 2, MaxConcurrent: -1}, errors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.GetCode(err))
		})
	}
}

func TestTarget_PortCount(t *testing.T) {
	assert.Equal(t, 1024, Target{StartPort: 1, EndPort: 1024}.PortCount())
	assert.Equal(t, 1, Target{StartPort: 80, EndPort: 80}.PortCount())
	assert.Equal(t, 0, Target{StartPort: 5, EndPort: 1}.PortCount())
}

func TestTarget_WithDefaults(t *testing.T) {
	got := Target{Host: " localhost ", StartPort: 1, EndPort: 2}.withDefaults(50)
	assert.Equal(t, "localhost", got.Host)
	assert.Equal(t, 50, got.MaxConcurrent)

	got = Target{Host: "h", MaxConcurrent: 7}.withDefaults(50)
	assert.Equal(t, 7, got.MaxConcurrent)

	got = Target{Host: "h"}.withDefaults(0)
	assert.Equal(t, DefaultMaxConcurrent, got.MaxConcurrent)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "open", OutcomeOpen.String())
	assert.Equal(t, "refused", OutcomeRefused.String())
	assert.Equal(t, "timeout", OutcomeTimeout.String())
	assert.Equal(t, "unreachable", OutcomeUnreachable.String())
	assert.Equal(t, "unresolved", OutcomeUnresolved.String())
	assert.Equal(t, "canceled", OutcomeCanceled.String())
	assert.Equal(t, "error", OutcomeError.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}

func TestProbeResult_JSON(t *testing.T) {
	data, err := json.Marshal(ProbeResult{Port: 22, Outcome: OutcomeRefused})
	require.NoError(t, err)
	assert.JSONEq(t, `{"port":22,"outcome":"refused","latency":0}`, string(data))
}

func TestParsePortRange(t *testing.T) {
	tests := []struct {
		spec      string
		wantStart int
		wantEnd   int
		wantCode  errors.ErrorCode
	}{
		{spec: "1-1000", wantStart: 1, wantEnd: 1000},
		{spec: " 80 ", wantStart: 80, wantEnd: 80},
		{spec: "22-22", wantStart: 22, wantEnd: 22},
		{spec: "1-65535", wantStart: 1, wantEnd: 65535},
		{spec: "", wantCode: errors.CodeValidation},
		{spec: "abc", wantCode: errors.CodeValidation},
		{spec: "1-x", wantCode: errors.CodeValidation},
		{spec: "5-1", wantCode: errors.CodeInvalidRange},
		{spec: "0-10", wantCode: errors.CodeInvalidRange},
		{spec: "1-70000", wantCode: errors.CodeInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			start, end, err := ParsePortRange(tt.spec)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}
