package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facegate/facegate-go/internal/conf"
	"github.com/facegate/facegate-go/internal/errors"
)

func testStorageConfig() conf.StorageConfig {
	return conf.StorageConfig{
		MountAttempts: 4,
		MountBackoff:  time.Millisecond,
		BusClockKHz:   []int{40000, 20000, 10000, 4000},
		OpTimeout:     100 * time.Millisecond,
	}
}

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	g := New(testStorageConfig(), NewDirMedium(t.TempDir()))
	require.NoError(t, g.Open())
	return g
}

// faultMedium fails a configurable number of mounts before delegating to a
// directory medium.
type faultMedium struct {
	*DirMedium
	mountFailures int
	mountCalls    int
	resetCalls    int
}

func (f *faultMedium) Mount(opts MountOptions) error {
	f.mountCalls++
	if f.mountCalls <= f.mountFailures {
		return errors.NewStd("simulated mount failure")
	}
	return f.DirMedium.Mount(opts)
}

func (f *faultMedium) Reset() error {
	f.resetCalls++
	return nil
}

func TestFreshBootEmptyCollections(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t)

	identities, err := g.ListIdentities()
	require.NoError(t, err)
	assert.Empty(t, identities)

	today := time.Now().Format("2006-01-02")
	rows, err := g.QueryAttendance(AttendanceQuery{Date: today})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestIdentityCreateDuplicateDelete(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t)

	require.NoError(t, g.CreateIdentity(Identity{ID: "S1", Name: "Alice", Department: "CS"}))
	require.NoError(t, g.CreateIdentity(Identity{ID: "S2", Name: "Bob", Department: "EE"}))

	err := g.CreateIdentity(Identity{ID: "S3", Name: "Alice", Department: "ME"})
	require.ErrorIs(t, err, ErrIdentityExists)

	identities, err := g.ListIdentities()
	require.NoError(t, err)
	require.Len(t, identities, 2)

	count, err := g.CountIdentities()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, g.DeleteIdentity("Alice"))
	identities, err = g.ListIdentities()
	require.NoError(t, err)
	require.Len(t, identities, 1)
	assert.Equal(t, "Bob", identities[0].Name)

	err = g.DeleteIdentity("Alice")
	require.ErrorIs(t, err, ErrIdentityNotFound)
}

func TestIdentityValidation(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t)

	err := g.CreateIdentity(Identity{Name: "NoID"})
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	err = g.CreateIdentity(Identity{ID: "S1"})
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestDeleteIdentityCascadesTemplates(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t)

	require.NoError(t, g.CreateIdentity(Identity{ID: "S1", Name: "Alice"}))
	require.NoError(t, g.SaveTemplates([]FaceTemplate{
		{Name: "Alice"},
		{Name: "Bob"},
	}, 5))

	require.NoError(t, g.DeleteIdentity("Alice"))

	templates, _, err := g.LoadTemplates()
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "Bob", templates[0].Name)
}

// templateFaultMedium simulates a transient template store fault that a
// remount clears: Mount runs the restore hook once after delegating to the
// directory medium.
type templateFaultMedium struct {
	*DirMedium
	restore func()
}

func (m *templateFaultMedium) Mount(opts MountOptions) error {
	if err := m.DirMedium.Mount(opts); err != nil {
		return err
	}
	if m.restore != nil {
		m.restore()
		m.restore = nil
	}
	return nil
}

func TestDeleteIdentityResumesCascadeAfterRemount(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	medium := &templateFaultMedium{DirMedium: NewDirMedium(dir)}
	g := New(testStorageConfig(), medium)
	require.NoError(t, g.Open())

	require.NoError(t, g.CreateIdentity(Identity{ID: "S1", Name: "Alice"}))
	require.NoError(t, g.SaveTemplates([]FaceTemplate{
		{Name: "Alice"},
		{Name: "Bob"},
	}, 5))

	// Break the template store so the cascade fails after the directory
	// rewrite has already landed; the remount puts the store back.
	storePath := filepath.Join(dir, templateFile)
	saved, err := os.ReadFile(storePath)
	require.NoError(t, err)
	require.NoError(t, os.Remove(storePath))
	require.NoError(t, os.Mkdir(storePath, 0o755))
	medium.restore = func() {
		require.NoError(t, os.RemoveAll(storePath))
		require.NoError(t, os.WriteFile(storePath, saved, 0o644))
	}

	// The delete must finish the template cleanup on the post-remount run
	// instead of mistaking the already-rewritten directory for a missing
	// identity.
	require.NoError(t, g.DeleteIdentity("Alice"))
	assert.Equal(t, StateMounted, g.State())

	_, found, err := g.FindIdentityByName("Alice")
	require.NoError(t, err)
	assert.False(t, found)

	templates, _, err := g.LoadTemplates()
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "Bob", templates[0].Name)
}

func TestFindIdentityByName(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t)

	require.NoError(t, g.CreateIdentity(Identity{ID: "S1", Name: "Alice", Department: "CS"}))

	identity, found, err := g.FindIdentityByName("Alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "S1", identity.ID)

	_, found, err = g.FindIdentityByName("Mallory")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLogAttendanceAtMostOncePerDay(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t)

	rec := AttendanceRecord{
		UID: "S1", Name: "Alice", Department: "CS",
		Date: "2024-01-10", Time: "07:45:00",
		Status: StatusPresent, Confidence: 0.93,
	}

	logged, err := g.LogAttendance(rec)
	require.NoError(t, err)
	assert.True(t, logged)

	// Second match the same day is suppressed by the ledger scan.
	rec.Time = "07:45:30"
	logged, err = g.LogAttendance(rec)
	require.NoError(t, err)
	assert.False(t, logged)

	rows, err := g.QueryAttendance(AttendanceQuery{Date: "2024-01-10"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "07:45:00", rows[0].Time)
	assert.Equal(t, StatusPresent, rows[0].Status)
}

func TestQueryAttendanceFilters(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t)

	seed := []AttendanceRecord{
		{UID: "S1", Name: "Alice", Department: "CS", Date: "2024-01-10", Time: "07:45:00", Status: StatusPresent},
		{UID: "S2", Name: "Bob", Department: "EE", Date: "2024-01-10", Time: "08:20:00", Status: StatusLate},
		{UID: "S3", Name: "Carol", Department: "CS", Date: "2024-01-10", Time: "10:30:00", Status: StatusAbsent},
	}
	for _, rec := range seed {
		logged, err := g.LogAttendance(rec)
		require.NoError(t, err)
		require.True(t, logged)
	}

	rows, err := g.QueryAttendance(AttendanceQuery{Date: "2024-01-10", Department: "CS"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = g.QueryAttendance(AttendanceQuery{Date: "2024-01-10", Status: StatusLate})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bob", rows[0].Name)

	rows, err = g.QueryAttendance(AttendanceQuery{Date: "2024-01-10", Search: "ali"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alice", rows[0].Name)

	_, err = g.QueryAttendance(AttendanceQuery{Date: "not-a-date"})
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestOverrideInsertThenUpdate(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t)

	// No prior row: exactly one row is appended.
	require.NoError(t, g.OverrideAttendance(AttendanceRecord{
		UID: "S1", Name: "Alice", Date: "2024-01-10",
		Time: "09:00:00", Status: StatusAbsent,
	}))
	rows, err := g.QueryAttendance(AttendanceQuery{Date: "2024-01-10"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, StatusAbsent, rows[0].Status)

	// Same (uid, date): the row is mutated, the count is unchanged.
	require.NoError(t, g.OverrideAttendance(AttendanceRecord{
		UID: "S1", Date: "2024-01-10",
		Time: "09:30:00", Status: StatusExcused, Notes: "medical",
	}))
	rows, err = g.QueryAttendance(AttendanceQuery{Date: "2024-01-10"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, StatusExcused, rows[0].Status)
	assert.Equal(t, "09:30:00", rows[0].Time)
	assert.Equal(t, "medical", rows[0].Notes)
	// Name from the original insert survives the rewrite.
	assert.Equal(t, "Alice", rows[0].Name)
}

func TestOverrideRejectsUnknownStatus(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t)

	err := g.OverrideAttendance(AttendanceRecord{
		UID: "S1", Date: "2024-01-10", Status: Status("Sleeping"),
	})
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestExportAndClearDay(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t)

	// Missing ledger exports as a bare header.
	content, err := g.ExportDay("2024-01-10")
	require.NoError(t, err)
	assert.Equal(t, "ID,Name,Dept,Date,Time,Status,Confidence,Notes\n", string(content))

	logged, err := g.LogAttendance(AttendanceRecord{
		UID: "S1", Name: "Alice", Date: "2024-01-10", Time: "07:45:00", Status: StatusPresent,
	})
	require.NoError(t, err)
	require.True(t, logged)

	content, err = g.ExportDay("2024-01-10")
	require.NoError(t, err)
	assert.Contains(t, string(content), "S1,Alice")

	require.NoError(t, g.ClearDay("2024-01-10"))
	rows, err := g.QueryAttendance(AttendanceQuery{Date: "2024-01-10"})
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Clearing an already-clear day succeeds.
	require.NoError(t, g.ClearDay("2024-01-10"))
}

func TestTemplateStoreRoundTrip(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t)

	var alice FaceTemplate
	alice.Name = "Alice"
	for i := range alice.Embedding {
		alice.Embedding[i] = float32(i) * 0.5
	}

	require.NoError(t, g.SaveTemplates([]FaceTemplate{alice}, 5))

	templates, confirmTimes, err := g.LoadTemplates()
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, 5, confirmTimes)
	assert.Equal(t, "Alice", templates[0].Name)
	assert.InDelta(t, 95.5, templates[0].Embedding[191], 1e-6)
}

func TestTemplateStoreTruncatedFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	g := New(testStorageConfig(), NewDirMedium(dir))
	require.NoError(t, g.Open())

	var tmpl FaceTemplate
	tmpl.Name = "Alice"
	require.NoError(t, g.SaveTemplates([]FaceTemplate{tmpl, {Name: "Bob"}}, 5))

	// Chop the second record in half.
	path := filepath.Join(dir, templateFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-100], 0o644))

	templates, _, err := g.LoadTemplates()
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "Alice", templates[0].Name)
}

func TestCountTemplateOwners(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t)

	require.NoError(t, g.SaveTemplates([]FaceTemplate{
		{Name: "Alice"}, {Name: "Alice"}, {Name: "Bob"},
	}, 5))

	owners, err := g.CountTemplateOwners()
	require.NoError(t, err)
	assert.Equal(t, 2, owners)
}

func TestSettingsLoadSave(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t)

	// First boot: defaults.
	settings, err := g.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, conf.DefaultDeviceSettings(), settings)

	settings.LateTime = "08:30"
	settings.AutoMode = false
	require.NoError(t, g.SaveSettings(settings))

	reloaded, err := g.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, settings, reloaded)

	// Validation failures never reach the medium.
	bad := settings
	bad.AbsentTime = "99:99"
	err = g.SaveSettings(bad)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestBootMountRetriesExhausted(t *testing.T) {
	t.Parallel()

	medium := &faultMedium{DirMedium: NewDirMedium(t.TempDir()), mountFailures: 10}
	g := New(testStorageConfig(), medium)

	err := g.Open()
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryHardware))
	assert.Equal(t, StateUnmounted, g.State())
	assert.Equal(t, 4, medium.mountCalls)
	// Bus is reset before every retry.
	assert.Equal(t, 3, medium.resetCalls)
}

func TestBootMountSucceedsAfterRetries(t *testing.T) {
	t.Parallel()

	medium := &faultMedium{DirMedium: NewDirMedium(t.TempDir()), mountFailures: 2}
	g := New(testStorageConfig(), medium)

	require.NoError(t, g.Open())
	assert.Equal(t, StateMounted, g.State())
	assert.Equal(t, 3, medium.mountCalls)
}

func TestOperationsFailBeforeOpen(t *testing.T) {
	t.Parallel()

	g := New(testStorageConfig(), NewDirMedium(t.TempDir()))
	_, err := g.ListIdentities()
	require.ErrorIs(t, err, ErrNotMounted)
}

func TestRemountRestoresDegradedGateway(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	g.setState(StateDegraded)

	// The next operation performs one remount; the directory medium mounts
	// cleanly, so normal write capability is restored.
	require.NoError(t, g.CreateIdentity(Identity{ID: "S1", Name: "Alice"}))
	assert.Equal(t, StateMounted, g.State())
}

func TestOpenHoldsGatewayLock(t *testing.T) {
	t.Parallel()

	g := New(testStorageConfig(), NewDirMedium(t.TempDir()))

	// A wedged lock keeps the boot sequence out; layout init never runs
	// outside the lock.
	require.True(t, g.acquire("test_wedge"))
	err := g.Open()
	require.ErrorIs(t, err, ErrContention)
	assert.Equal(t, StateUnmounted, g.State())

	g.release()
	require.NoError(t, g.Open())
	assert.Equal(t, StateMounted, g.State())
}

func TestContentionSoftFailure(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	require.NoError(t, g.CreateIdentity(Identity{ID: "S1", Name: "Alice"}))

	// Warm the cache, then wedge the lock.
	_, err := g.ListIdentities()
	require.NoError(t, err)
	require.True(t, g.acquire("test_wedge"))
	defer g.release()

	// Reads soft-fail to the cached directory.
	identities, err := g.ListIdentities()
	require.ErrorIs(t, err, ErrContention)
	require.Len(t, identities, 1)
	assert.Equal(t, "Alice", identities[0].Name)

	// Settings soft-fail to defaults.
	settings, err := g.LoadSettings()
	require.ErrorIs(t, err, ErrContention)
	assert.Equal(t, conf.DefaultDeviceSettings(), settings)

	// Writes fail with the contention category and no side effects.
	err = g.CreateIdentity(Identity{ID: "S2", Name: "Bob"})
	require.ErrorIs(t, err, ErrContention)
	assert.True(t, errors.HasCategory(err, errors.CategoryContention))
}

func TestFactoryReset(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t)

	require.NoError(t, g.CreateIdentity(Identity{ID: "S1", Name: "Alice"}))
	require.NoError(t, g.SaveTemplates([]FaceTemplate{{Name: "Alice"}}, 5))
	logged, err := g.LogAttendance(AttendanceRecord{
		UID: "S1", Name: "Alice", Date: "2024-01-10", Time: "07:45:00", Status: StatusPresent,
	})
	require.NoError(t, err)
	require.True(t, logged)
	settings, _ := g.LoadSettings()
	settings.Feedback = false
	require.NoError(t, g.SaveSettings(settings))

	require.NoError(t, g.FactoryReset())

	identities, err := g.ListIdentities()
	require.NoError(t, err)
	assert.Empty(t, identities)

	dates, err := g.ListLedgerDates()
	require.NoError(t, err)
	assert.Empty(t, dates)

	templates, _, err := g.LoadTemplates()
	require.NoError(t, err)
	assert.Empty(t, templates)

	reloaded, err := g.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, conf.DefaultDeviceSettings(), reloaded)
}

func TestLedgerFileLayout(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	g := New(testStorageConfig(), NewDirMedium(dir))
	require.NoError(t, g.Open())

	logged, err := g.LogAttendance(AttendanceRecord{
		UID: "S1", Name: "Alice", Date: "2024-01-10", Time: "07:45:00", Status: StatusPresent,
	})
	require.NoError(t, err)
	require.True(t, logged)

	// One ledger file per calendar day, under atd/.
	_, err = os.Stat(filepath.Join(dir, "atd", "log_2024-01-10.csv"))
	require.NoError(t, err)

	dates, err := g.ListLedgerDates()
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-10"}, dates)
}
