package recurrence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	rule, err := Decode([]byte(`{"type":"weekly","atTime":"10:30","onDays":["fri","MON","MON"]}`))
	require.NoError(t, err)

	weekly, ok := rule.(WeeklyRule)
	require.True(t, ok)
	assert.Equal(t, []time.Weekday{time.Monday, time.Friday}, weekly.OnWeekdays)
	assert.Equal(t, TimeOfDay{Hour: 10, Minute: 30}, weekly.At)
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"mismatched payload", `{"type":"interval","atTime":"09:00","onDate":3}`},
		{"missing payload", `{"type":"monthly","atTime":"09:00"}`},
		{"bad time", `{"type":"interval","atTime":"9:00","days":1}`},
		{"unknown type", `{"type":"yearly","atTime":"09:00"}`},
		{"unknown weekday", `{"type":"weekly","atTime":"09:00","onDays":["FUNDAY"]}`},
		{"not json", `nope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			assert.ErrorIs(t, err, ErrInvalidRule)
		})
	}
}

func TestConfig_JSONInDocument(t *testing.T) {
	var doc struct {
		Repetition Config `json:"repetitionConfig"`
	}
	err := json.Unmarshal([]byte(`{"repetitionConfig":{"type":"monthly","atTime":"07:05","onDate":15}}`), &doc)
	require.NoError(t, err)
	assert.Equal(t, MonthlyRule{OnDayOfMonth: 15, At: TimeOfDay{Hour: 7, Minute: 5}}, doc.Repetition.Rule)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"repetitionConfig":{"type":"monthly","atTime":"07:05","onDate":15}}`, string(out))
}

func TestConfig_Scan(t *testing.T) {
	var c Config
	require.NoError(t, c.Scan([]byte(`{"type":"interval","atTime":"23:59","days":7}`)))
	assert.Equal(t, IntervalRule{EveryNDays: 7, At: TimeOfDay{Hour: 23, Minute: 59}}, c.Rule)

	require.NoError(t, c.Scan(nil))
	assert.Nil(t, c.Rule)

	assert.Error(t, c.Scan(42))
}
