package storage

import (
	"os"
	"path/filepath"

	"github.com/facegate/facegate-go/internal/conf"
)

// LoadSettings reads the persisted device settings, merging them over the
// hardcoded defaults. Settings are always loadable: a missing or corrupt file
// yields the defaults, and on lock contention the defaults are returned
// together with the contention error.
func (g *Gateway) LoadSettings() (conf.DeviceSettings, error) {
	if !g.acquire("load_settings") {
		return conf.DefaultDeviceSettings(), g.contentionErr("load_settings")
	}
	defer g.release()

	settings := conf.DefaultDeviceSettings()
	err := g.withMedium("load_settings", func(root string) error {
		data, err := os.ReadFile(filepath.Join(root, dbDir, settingsFile))
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		settings = conf.ParseDeviceSettings(data)
		return nil
	})
	g.metrics.RecordOperation("load_settings", err)
	if err != nil {
		return conf.DefaultDeviceSettings(), err
	}
	return settings, nil
}

// SaveSettings overwrites the settings file with the complete struct.
func (g *Gateway) SaveSettings(settings conf.DeviceSettings) error {
	if err := settings.Validate(); err != nil {
		return errValidation(err.Error())
	}

	if !g.acquire("save_settings") {
		return g.contentionErr("save_settings")
	}
	defer g.release()

	err := g.withMedium("save_settings", func(root string) error {
		data, err := settings.Marshal()
		if err != nil {
			return err
		}
		return writeFileAtomic(filepath.Join(root, dbDir, settingsFile), data)
	})
	g.metrics.RecordOperation("save_settings", err)
	return err
}
