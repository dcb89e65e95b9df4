package storage

import (
	"os"
	"path/filepath"
	"strings"
)

// FactoryReset wipes all ledgers, templates, identities and settings, then
// recreates the empty directory layout. The identity cache is invalidated so
// the next read observes the empty directory.
func (g *Gateway) FactoryReset() error {
	if !g.acquire("factory_reset") {
		return g.contentionErr("factory_reset")
	}
	defer g.release()

	err := g.withMedium("factory_reset", func(root string) error {
		// Ledger files.
		entries, err := os.ReadDir(filepath.Join(root, ledgerDir))
		if err == nil {
			for _, entry := range entries {
				if strings.HasSuffix(entry.Name(), ".csv") {
					if err := os.Remove(filepath.Join(root, ledgerDir, entry.Name())); err != nil {
						return err
					}
				}
			}
		} else if !os.IsNotExist(err) {
			return err
		}

		// Template store, identity directory, settings.
		for _, path := range []string{
			filepath.Join(root, templateFile),
			filepath.Join(root, dbDir, usersFile),
			filepath.Join(root, dbDir, settingsFile),
		} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
		}

		return g.initLayoutLocked()
	})
	g.metrics.RecordOperation("factory_reset", err)
	g.cache.Delete(identityCacheKey)
	if err == nil {
		g.log.Info("factory reset complete")
	}
	return err
}
