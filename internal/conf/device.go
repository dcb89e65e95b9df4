package conf

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DeviceSettings is the runtime settings entity persisted on the storage
// medium as JSON. It is always loadable: a missing or corrupt file falls back
// to hardcoded defaults, and individual malformed fields are left at their
// default rather than aborting the load.
type DeviceSettings struct {
	StartTime        string  `json:"start_time"`         // HH:MM, start of the attendance window
	EndTime          string  `json:"end_time"`           // HH:MM, end of the attendance window
	LateTime         string  `json:"late_time"`          // HH:MM, matches at or after this are Late
	AbsentTime       string  `json:"absent_time"`        // HH:MM, matches at or after this are Absent
	Confidence       float64 `json:"confidence"`         // recognition confidence threshold
	Feedback         bool    `json:"feedback"`           // LED/buzzer feedback toggle
	AutoMode         bool    `json:"auto_mode"`          // automatic attendance mode toggle
	NTPServer        string  `json:"ntp_server"`         // time sync server
	UTCOffsetMinutes int     `json:"utc_offset_minutes"` // local offset from UTC
}

// DefaultDeviceSettings returns the hardcoded defaults used at first boot and
// as the fallback for missing or malformed persisted fields.
func DefaultDeviceSettings() DeviceSettings {
	return DeviceSettings{
		StartTime:        "07:00",
		EndTime:          "17:00",
		LateTime:         "08:10",
		AbsentTime:       "10:00",
		Confidence:       0.80,
		Feedback:         true,
		AutoMode:         true,
		NTPServer:        "pool.ntp.org",
		UTCOffsetMinutes: 0,
	}
}

// deviceSettingsPatch mirrors DeviceSettings with pointer fields so that a
// partial or damaged settings file only overrides the fields it actually
// carries.
type deviceSettingsPatch struct {
	StartTime        *string  `json:"start_time"`
	EndTime          *string  `json:"end_time"`
	LateTime         *string  `json:"late_time"`
	AbsentTime       *string  `json:"absent_time"`
	Confidence       *float64 `json:"confidence"`
	Feedback         *bool    `json:"feedback"`
	AutoMode         *bool    `json:"auto_mode"`
	NTPServer        *string  `json:"ntp_server"`
	UTCOffsetMinutes *int     `json:"utc_offset_minutes"`
}

// ParseDeviceSettings merges persisted JSON over the defaults. It never fails:
// unparseable data yields the defaults unchanged, and any field that does not
// validate is skipped.
func ParseDeviceSettings(data []byte) DeviceSettings {
	settings := DefaultDeviceSettings()

	var patch deviceSettingsPatch
	if err := json.Unmarshal(data, &patch); err != nil {
		return settings
	}

	applyClock := func(dst *string, src *string) {
		if src != nil {
			if _, err := ParseClock(*src); err == nil {
				*dst = *src
			}
		}
	}
	applyClock(&settings.StartTime, patch.StartTime)
	applyClock(&settings.EndTime, patch.EndTime)
	applyClock(&settings.LateTime, patch.LateTime)
	applyClock(&settings.AbsentTime, patch.AbsentTime)

	if patch.Confidence != nil && *patch.Confidence > 0 && *patch.Confidence <= 1 {
		settings.Confidence = *patch.Confidence
	}
	if patch.Feedback != nil {
		settings.Feedback = *patch.Feedback
	}
	if patch.AutoMode != nil {
		settings.AutoMode = *patch.AutoMode
	}
	if patch.NTPServer != nil && *patch.NTPServer != "" {
		settings.NTPServer = *patch.NTPServer
	}
	if patch.UTCOffsetMinutes != nil && *patch.UTCOffsetMinutes >= -14*60 && *patch.UTCOffsetMinutes <= 14*60 {
		settings.UTCOffsetMinutes = *patch.UTCOffsetMinutes
	}

	return settings
}

// Marshal serializes the complete settings struct for persistence. Save is
// always wholesale.
func (s DeviceSettings) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Validate checks every field of a settings struct submitted through the
// control plane.
func (s DeviceSettings) Validate() error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"start_time", s.StartTime},
		{"end_time", s.EndTime},
		{"late_time", s.LateTime},
		{"absent_time", s.AbsentTime},
	} {
		if _, err := ParseClock(field.value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", field.name, field.value, err)
		}
	}
	if s.Confidence <= 0 || s.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range (0, 1]", s.Confidence)
	}
	if s.NTPServer == "" {
		return fmt.Errorf("ntp_server must not be empty")
	}
	if s.UTCOffsetMinutes < -14*60 || s.UTCOffsetMinutes > 14*60 {
		return fmt.Errorf("utc_offset_minutes %d out of range", s.UTCOffsetMinutes)
	}
	return nil
}

// ParseClock parses an HH:MM time-of-day string into minutes since midnight.
func ParseClock(value string) (int, error) {
	hh, mm, ok := strings.Cut(value, ":")
	if !ok {
		return 0, fmt.Errorf("expected HH:MM")
	}
	hours, err := strconv.Atoi(hh)
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid hour %q", hh)
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid minute %q", mm)
	}
	return hours*60 + minutes, nil
}
