package attendance

import (
	"time"

	"github.com/facegate/facegate-go/internal/conf"
	"github.com/facegate/facegate-go/internal/storage"
)

// DeriveStatus maps a check-in time of day onto an attendance status using
// the device thresholds. Before the late threshold the person is present,
// before the absent threshold they are late, after it they are recorded
// absent. Excused is never derived; it only enters the ledger through a
// manual override.
func DeriveStatus(at time.Time, settings conf.DeviceSettings) storage.Status {
	minutes := at.Hour()*60 + at.Minute()

	late, err := conf.ParseClock(settings.LateTime)
	if err != nil {
		late, _ = conf.ParseClock(conf.DefaultDeviceSettings().LateTime)
	}
	absent, err := conf.ParseClock(settings.AbsentTime)
	if err != nil {
		absent, _ = conf.ParseClock(conf.DefaultDeviceSettings().AbsentTime)
	}

	switch {
	case minutes < late:
		return storage.StatusPresent
	case minutes < absent:
		return storage.StatusLate
	default:
		return storage.StatusAbsent
	}
}
