package config

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RESIDIA_TEST_SECRET", "0123456789abcdef0123")

	path := writeFile(t, dir, "config.yaml", `
http:
  address: ":9000"
  read_timeout: 5s
database:
  path: `+filepath.Join(dir, "data", "residia.db")+`
auth:
  jwt_secret: ${RESIDIA_TEST_SECRET}
  issuer: residia
roles:
  concierge: [book_own, represent_block]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Address)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ReadTimeout.Std())
	assert.Equal(t, 30*time.Second, cfg.HTTP.WriteTimeout.Std())
	assert.Equal(t, "0123456789abcdef0123", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"book_own", "represent_block"}, cfg.Roles["concierge"])
	assert.Equal(t, "@every 15m", cfg.Jobs.CompletionSchedule)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.DirExists(t, filepath.Join(dir, "data"))
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing secret", "auth: {}\n", "auth.jwt_secret is required"},
		{"short secret", "auth:\n  jwt_secret: short\n", "at least 16 characters"},
		{"bad duration", "http:\n  read_timeout: soon\n", "invalid duration"},
		{"bad timezone", "auth:\n  jwt_secret: 0123456789abcdef\njobs:\n  timezone: Mars/Olympus\n", "jobs.timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "config.yaml", tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

const catalogYAML = `
communities:
  - id: 1
    name: Riverside
    amenities:
      - id: 1
        name: Pool
        limits:
          allowed_weekdays: [1, 2, 3, 4, 5]
          schedule_start: "08:00"
          schedule_end: "20:00"
          max_reservations_per_month: 4
          max_duration_hours_per_day: 1.5
          exception_dates: ["2025-12-25"]
      - id: 2
        name: Gym
        reservable: false
    blocks:
      - {id: 10, name: A}
      - {id: 11, name: A1, parent: 10}
    units:
      - {id: 100, block: 11, label: A1-1, owners: [1]}
    members:
      - {user: 1, role: resident}
      - {user: 3, role: representative, block: 10}
`

func TestLoadCatalog(t *testing.T) {
	path := writeFile(t, t.TempDir(), "catalog.yaml", catalogYAML)

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, cat.Communities, 1)

	com := cat.Communities[0]
	assert.True(t, com.Amenities[0].IsReservable())
	assert.False(t, com.Amenities[1].IsReservable())
	require.NotNil(t, com.Blocks[1].Parent)
	assert.Equal(t, int64(10), *com.Blocks[1].Parent)

	limits, err := com.Amenities[0].Limits.ToModel()
	require.NoError(t, err)
	assert.Len(t, limits.AllowedWeekdays, 5)
	assert.Equal(t, time.Monday, limits.AllowedWeekdays[0])
	assert.Equal(t, "20:00", limits.ScheduleEnd.String())
	assert.Equal(t, 4, *limits.MaxReservationsPerMonth)
	assert.Equal(t, "1.5", limits.MaxDurationHoursPerDay.Decimal.String())
	assert.Equal(t, "2025-12-25", limits.ExceptionDates[0].String())
}

func TestCatalogValidate(t *testing.T) {
	parent := func(v int64) *int64 { return &v }
	base := func() CommunityConfig {
		return CommunityConfig{
			ID:     1,
			Name:   "Riverside",
			Blocks: []BlockConfig{{ID: 10, Name: "A"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *CommunityConfig)
		wantErr string
	}{
		{"valid", func(c *CommunityConfig) {}, ""},
		{"missing name", func(c *CommunityConfig) { c.Name = "" }, "communities[0]: name is required"},
		{"bad amenity id", func(c *CommunityConfig) { c.Amenities = []AmenityConfig{{ID: 0, Name: "Pool"}} }, "amenities[0]: id must be positive"},
		{"self parent", func(c *CommunityConfig) { c.Blocks[0].Parent = parent(10) }, "own parent"},
		{"unknown parent", func(c *CommunityConfig) { c.Blocks[0].Parent = parent(99) }, "unknown parent block 99"},
		{"unit unknown block", func(c *CommunityConfig) { c.Units = []UnitConfig{{ID: 1, Block: 99}} }, "units[0]: unknown block 99"},
		{"member without role", func(c *CommunityConfig) { c.Members = []MemberConfig{{User: 1}} }, "members[0]: role is required"},
		{"bad limits", func(c *CommunityConfig) {
			c.Amenities = []AmenityConfig{{ID: 1, Name: "Pool", Limits: &LimitsConfig{AllowedWeekdays: []int{7}}}}
		}, "allowed_weekdays[0]: invalid day 7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			com := base()
			tt.mutate(&com)
			err := (&CatalogConfig{Communities: []CommunityConfig{com}}).Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.Error(t, (&CatalogConfig{}).Validate())
}

func TestLimitsToModel(t *testing.T) {
	var nilLimits *LimitsConfig
	got, err := nilLimits.ToModel()
	assert.NoError(t, err)
	assert.Nil(t, got)

	tests := []struct {
		name   string
		limits LimitsConfig
	}{
		{"half schedule", LimitsConfig{ScheduleStart: "08:00"}},
		{"equal schedule", LimitsConfig{ScheduleStart: "08:00", ScheduleEnd: "08:00"}},
		{"bad clock", LimitsConfig{ScheduleStart: "8am", ScheduleEnd: "20:00"}},
		{"zero monthly", LimitsConfig{MaxReservationsPerMonth: new(int)}},
		{"negative hours", LimitsConfig{MaxDurationHoursPerDay: "-1"}},
		{"too many hours", LimitsConfig{MaxDurationHoursPerDay: "25"}},
		{"bad exception", LimitsConfig{ExceptionDates: []string{"25.12.2025"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.limits.ToModel()
			assert.Error(t, err)
		})
	}

	wrapped, err := (&LimitsConfig{ScheduleStart: "22:00", ScheduleEnd: "06:00"}).ToModel()
	require.NoError(t, err)
	assert.True(t, *wrapped.ScheduleStart > *wrapped.ScheduleEnd)
}

func TestCatalogWatcher(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeFile(t, dir, "catalog.yaml", catalogYAML)

	var (
		mu      sync.Mutex
		applied []*CatalogConfig
	)
	apply := func(_ context.Context, c *CatalogConfig) error {
		mu.Lock()
		defer mu.Unlock()
		applied = append(applied, c)
		return nil
	}
	appliedCount := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(applied)
	}
	touch := func(content string, offset time.Duration) {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		mtime := time.Now().Add(offset)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}

	w := NewCatalogWatcher(path, 10*time.Millisecond, apply, zerolog.New(io.Discard))
	require.NoError(t, w.Load(ctx))
	require.Equal(t, 1, appliedCount())

	t.Run("UnchangedFileIsSkipped", func(t *testing.T) {
		changed, err := w.Check(ctx)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, 1, appliedCount())
	})

	t.Run("BrokenFileKeepsPrevious", func(t *testing.T) {
		touch("communities: [", time.Minute)
		changed, err := w.Check(ctx)
		assert.True(t, changed)
		assert.Error(t, err)
		assert.Equal(t, 1, appliedCount())

		changed, err = w.Check(ctx)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("RunAppliesNewVersion", func(t *testing.T) {
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go w.Run(runCtx)

		touch(catalogYAML, 2*time.Minute)
		assert.Eventually(t, func() bool { return appliedCount() == 2 }, time.Second, 10*time.Millisecond)
	})
}

func TestCatalogWatcher_LoadErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logger := zerolog.New(io.Discard)

	missing := NewCatalogWatcher(filepath.Join(dir, "missing.yaml"), time.Second, nil, logger)
	assert.Error(t, missing.Load(ctx))

	path := writeFile(t, dir, "catalog.yaml", catalogYAML)
	failing := NewCatalogWatcher(path, time.Second, func(context.Context, *CatalogConfig) error {
		return errors.New("database is locked")
	}, logger)
	err := failing.Load(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply catalog: database is locked")
}
