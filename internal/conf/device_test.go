package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		want    int
		wantErr bool
	}{
		{name: "midnight", value: "00:00", want: 0},
		{name: "morning", value: "08:10", want: 490},
		{name: "end of day", value: "23:59", want: 1439},
		{name: "hour out of range", value: "24:00", wantErr: true},
		{name: "minute out of range", value: "10:60", wantErr: true},
		{name: "missing separator", value: "0810", wantErr: true},
		{name: "garbage", value: "late", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseClock(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDeviceSettingsCorruptFile(t *testing.T) {
	t.Parallel()

	// Corrupt JSON falls back to defaults wholesale.
	settings := ParseDeviceSettings([]byte("{not json"))
	assert.Equal(t, DefaultDeviceSettings(), settings)

	// Empty input behaves the same.
	settings = ParseDeviceSettings(nil)
	assert.Equal(t, DefaultDeviceSettings(), settings)
}

func TestParseDeviceSettingsPartialMerge(t *testing.T) {
	t.Parallel()

	data := []byte(`{"late_time":"09:00","confidence":0.9,"auto_mode":false}`)
	settings := ParseDeviceSettings(data)

	assert.Equal(t, "09:00", settings.LateTime)
	assert.InDelta(t, 0.9, settings.Confidence, 1e-9)
	assert.False(t, settings.AutoMode)

	// Untouched fields keep their defaults.
	defaults := DefaultDeviceSettings()
	assert.Equal(t, defaults.StartTime, settings.StartTime)
	assert.Equal(t, defaults.AbsentTime, settings.AbsentTime)
	assert.Equal(t, defaults.NTPServer, settings.NTPServer)
}

func TestParseDeviceSettingsSkipsMalformedFields(t *testing.T) {
	t.Parallel()

	data := []byte(`{"late_time":"25:99","confidence":7.5,"ntp_server":""}`)
	settings := ParseDeviceSettings(data)
	assert.Equal(t, DefaultDeviceSettings(), settings)
}

func TestDeviceSettingsValidate(t *testing.T) {
	t.Parallel()

	valid := DefaultDeviceSettings()
	require.NoError(t, valid.Validate())

	badClock := valid
	badClock.AbsentTime = "99:00"
	assert.Error(t, badClock.Validate())

	badConfidence := valid
	badConfidence.Confidence = 0
	assert.Error(t, badConfidence.Validate())

	badOffset := valid
	badOffset.UTCOffsetMinutes = 10000
	assert.Error(t, badOffset.Validate())
}

func TestDeviceSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	settings := DefaultDeviceSettings()
	settings.LateTime = "08:30"
	settings.Feedback = false

	data, err := settings.Marshal()
	require.NoError(t, err)

	assert.Equal(t, settings, ParseDeviceSettings(data))
}
