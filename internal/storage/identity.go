package storage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/patrickmn/go-cache"

	"github.com/facegate/facegate-go/internal/errors"
)

// Identity is a registered person record. The display name is the join key
// used by the template store; the id is the durable key used by the ledgers.
// Records are never mutated in place: they are created and deleted whole.
type Identity struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"dept"`
	Role       string `json:"role,omitempty"`
	Enrolled   bool   `json:"enrolled"`
}

// ListIdentities returns the identity directory. The directory is read once
// and cached; mutating operations invalidate the cache. On lock contention a
// stale cached copy is returned together with the contention error, so the
// caller can keep serving.
func (g *Gateway) ListIdentities() ([]Identity, error) {
	if !g.acquire("list_identities") {
		if cached, ok := g.cache.Get(identityCacheKey); ok {
			return cloneIdentities(cached.([]Identity)), g.contentionErr("list_identities")
		}
		return []Identity{}, g.contentionErr("list_identities")
	}
	defer g.release()
	return g.listIdentitiesLocked()
}

// CountIdentities returns the number of registered identities, reusing the
// directory read under the already-held lock.
func (g *Gateway) CountIdentities() (int, error) {
	if !g.acquire("count_identities") {
		if cached, ok := g.cache.Get(identityCacheKey); ok {
			return len(cached.([]Identity)), g.contentionErr("count_identities")
		}
		return 0, g.contentionErr("count_identities")
	}
	defer g.release()

	identities, err := g.listIdentitiesLocked()
	if err != nil {
		return 0, err
	}
	return len(identities), nil
}

// FindIdentityByName looks an identity up by its display name, the key the
// matcher reports. Served from the identity cache on the hot per-match path.
func (g *Gateway) FindIdentityByName(name string) (Identity, bool, error) {
	identities, err := g.ListIdentities()
	if err != nil && len(identities) == 0 {
		return Identity{}, false, err
	}
	for _, id := range identities {
		if id.Name == name {
			return id, true, err
		}
	}
	return Identity{}, false, err
}

// CreateIdentity appends a new identity to the directory. A duplicate display
// name is rejected: templates are keyed by name and an alias would make two
// people indistinguishable to the matcher.
func (g *Gateway) CreateIdentity(identity Identity) error {
	if identity.ID == "" || identity.Name == "" {
		return errValidation("identity id and name are required")
	}

	if !g.acquire("create_identity") {
		return g.contentionErr("create_identity")
	}
	defer g.release()

	err := g.withMedium("create_identity", func(root string) error {
		identities, err := g.readDirectory(root)
		if err != nil {
			return err
		}
		for _, existing := range identities {
			if existing.Name == identity.Name {
				return errors.New(ErrIdentityExists).
					Component("storage").
					Category(errors.CategoryConflict).
					Context("name", identity.Name).
					Build()
			}
		}
		identities = append(identities, identity)
		return g.writeDirectory(root, identities)
	})
	g.metrics.RecordOperation("create_identity", err)
	if err == nil {
		g.cache.Delete(identityCacheKey)
	}
	return err
}

// DeleteIdentity removes an identity by name and cascades removal of its
// face templates.
func (g *Gateway) DeleteIdentity(name string) error {
	if name == "" {
		return errValidation("identity name is required")
	}

	if !g.acquire("delete_identity") {
		return g.contentionErr("delete_identity")
	}
	defer g.release()

	// The closure runs again after a silent remount, so it tracks how far the
	// cascade got: once the directory rewrite has landed, a re-run must not
	// re-read the directory (the entry is already gone) but still finish the
	// template cleanup.
	directoryRewritten := false
	err := g.withMedium("delete_identity", func(root string) error {
		if !directoryRewritten {
			identities, err := g.readDirectory(root)
			if err != nil {
				return err
			}
			kept := identities[:0]
			found := false
			for _, existing := range identities {
				if existing.Name == name {
					found = true
					continue
				}
				kept = append(kept, existing)
			}
			if !found {
				return ErrIdentityNotFound
			}
			if err := g.writeDirectory(root, kept); err != nil {
				return err
			}
			directoryRewritten = true
		}
		return g.deleteTemplatesLocked(root, name)
	})
	g.metrics.RecordOperation("delete_identity", err)
	if err == nil {
		g.cache.Delete(identityCacheKey)
	}
	return err
}

// MarkEnrolled flips the enrolled flag once a template set has been persisted
// for the identity.
func (g *Gateway) MarkEnrolled(name string, enrolled bool) error {
	if !g.acquire("mark_enrolled") {
		return g.contentionErr("mark_enrolled")
	}
	defer g.release()

	err := g.withMedium("mark_enrolled", func(root string) error {
		identities, err := g.readDirectory(root)
		if err != nil {
			return err
		}
		found := false
		for i := range identities {
			if identities[i].Name == name {
				identities[i].Enrolled = enrolled
				found = true
			}
		}
		if !found {
			return ErrIdentityNotFound
		}
		return g.writeDirectory(root, identities)
	})
	g.metrics.RecordOperation("mark_enrolled", err)
	if err == nil {
		g.cache.Delete(identityCacheKey)
	}
	return err
}

func (g *Gateway) listIdentitiesLocked() ([]Identity, error) {
	if cached, ok := g.cache.Get(identityCacheKey); ok {
		g.metrics.RecordIdentityCache(true)
		return cloneIdentities(cached.([]Identity)), nil
	}
	g.metrics.RecordIdentityCache(false)

	var identities []Identity
	err := g.withMedium("list_identities", func(root string) error {
		var readErr error
		identities, readErr = g.readDirectory(root)
		return readErr
	})
	g.metrics.RecordOperation("list_identities", err)
	if err != nil {
		return []Identity{}, err
	}
	g.cache.Set(identityCacheKey, cloneIdentities(identities), cache.NoExpiration)
	return identities, nil
}

func (g *Gateway) readDirectory(root string) ([]Identity, error) {
	data, err := os.ReadFile(filepath.Join(root, dbDir, usersFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []Identity{}, nil
		}
		return nil, err
	}
	var identities []Identity
	if err := json.Unmarshal(data, &identities); err != nil {
		// A damaged directory file is treated as empty rather than wedging
		// every identity operation; the next write rebuilds it.
		g.log.Error("identity directory is corrupt, treating as empty", "error", err)
		return []Identity{}, nil
	}
	return identities, nil
}

func (g *Gateway) writeDirectory(root string, identities []Identity) error {
	data, err := json.MarshalIndent(identities, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(root, dbDir, usersFile), data)
}

func cloneIdentities(in []Identity) []Identity {
	out := make([]Identity, len(in))
	copy(out, in)
	return out
}
