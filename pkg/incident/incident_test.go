package incident

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
	}{
		{"low", SeverityLow},
		{"LOW", SeverityLow},
		{" Medium ", SeverityMedium},
		{"high", SeverityHigh},
		{"1", SeverityLow},
		{"2", SeverityLow},
		{"3", SeverityMedium},
		{"4", SeverityHigh},
		{"5", SeverityHigh},
	}
	for _, tt := range tests {
		got, err := ParseSeverity(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "critical", "0", "6", "-1"} {
		_, err := ParseSeverity(bad)
		assert.ErrorIs(t, err, ErrInvalidSeverity, bad)
	}
}

func TestSeverityJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		S Severity `json:"s"`
	}{SeverityHigh})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"high"}`, string(b))

	var v struct {
		S Severity `json:"s"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"s":"medium"}`), &v))
	assert.Equal(t, SeverityMedium, v.S)
	assert.Error(t, json.Unmarshal([]byte(`{"s":"extreme"}`), &v))

	_, err = json.Marshal(struct{ S Severity }{0})
	assert.Error(t, err)
}

func TestIncidentActiveAt(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inc := Incident{ReportedAt: at}
	retention := 30 * 24 * time.Hour

	assert.True(t, inc.ActiveAt(at, retention))
	assert.True(t, inc.ActiveAt(at.Add(retention), retention), "boundary is inclusive")
	assert.False(t, inc.ActiveAt(at.Add(retention+time.Nanosecond), retention))
	assert.True(t, inc.ActiveAt(at.Add(-time.Hour), retention), "future incident is active")
	assert.Equal(t, time.Duration(0), inc.Age(at.Add(-time.Hour)))
	assert.True(t, inc.ActiveAt(at.Add(1000*retention), 0), "zero retention never expires")
}
