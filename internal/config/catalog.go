package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"residia/internal/model"
)

// CatalogConfig is the root of catalog.yaml.
type CatalogConfig struct {
	Communities []CommunityConfig `yaml:"communities"`
}

// CommunityConfig describes one community and its structure.
type CommunityConfig struct {
	ID        int64           `yaml:"id"`
	Name      string          `yaml:"name"`
	Amenities []AmenityConfig `yaml:"amenities"`
	Blocks    []BlockConfig   `yaml:"blocks"`
	Units     []UnitConfig    `yaml:"units"`
	Members   []MemberConfig  `yaml:"members"`
}

// AmenityConfig describes a bookable facility.
type AmenityConfig struct {
	ID         int64         `yaml:"id"`
	Name       string        `yaml:"name"`
	Reservable *bool         `yaml:"reservable,omitempty"` // default true
	Limits     *LimitsConfig `yaml:"limits,omitempty"`
}

// LimitsConfig is the YAML form of model.ReservationLimits.
type LimitsConfig struct {
	AllowedWeekdays         []int    `yaml:"allowed_weekdays,omitempty"` // 0=Sun .. 6=Sat
	ScheduleStart           string   `yaml:"schedule_start,omitempty"`   // "08:00"
	ScheduleEnd             string   `yaml:"schedule_end,omitempty"`     // "20:00"
	MaxReservationsPerMonth *int     `yaml:"max_reservations_per_month,omitempty"`
	MaxDurationHoursPerDay  string   `yaml:"max_duration_hours_per_day,omitempty"` // "1.5"
	ExceptionDates          []string `yaml:"exception_dates,omitempty"`            // "2025-12-25"
}

// BlockConfig is a node of the block tree.
type BlockConfig struct {
	ID     int64  `yaml:"id"`
	Name   string `yaml:"name"`
	Parent *int64 `yaml:"parent,omitempty"`
}

// UnitConfig is a dwelling with its owners.
type UnitConfig struct {
	ID     int64   `yaml:"id"`
	Block  int64   `yaml:"block"`
	Label  string  `yaml:"label"`
	Owners []int64 `yaml:"owners"`
}

// MemberConfig grants a role, optionally anchored to a block.
type MemberConfig struct {
	User  int64  `yaml:"user"`
	Role  string `yaml:"role"`
	Block *int64 `yaml:"block,omitempty"`
}

// IsReservable returns the configured flag, true when omitted.
func (a AmenityConfig) IsReservable() bool {
	return a.Reservable == nil || *a.Reservable
}

// LoadCatalog loads and validates catalog.yaml.
func LoadCatalog(path string) (*CatalogConfig, error) {
	if path == "" {
		path = "configs/catalog.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var cfg CatalogConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	return &cfg, nil
}

// Validate checks the catalog for errors.
func (c *CatalogConfig) Validate() error {
	if len(c.Communities) == 0 {
		return fmt.Errorf("no communities defined")
	}

	communities := make(map[int64]bool)
	amenities := make(map[int64]bool)
	blocks := make(map[int64]bool)
	units := make(map[int64]bool)

	for i, com := range c.Communities {
		prefix := fmt.Sprintf("communities[%d]", i)
		if com.ID <= 0 {
			return fmt.Errorf("%s: id must be positive, got %d", prefix, com.ID)
		}
		if communities[com.ID] {
			return fmt.Errorf("%s: duplicate id %d", prefix, com.ID)
		}
		communities[com.ID] = true
		if strings.TrimSpace(com.Name) == "" {
			return fmt.Errorf("%s: name is required", prefix)
		}

		for j, a := range com.Amenities {
			p := fmt.Sprintf("%s.amenities[%d]", prefix, j)
			if a.ID <= 0 {
				return fmt.Errorf("%s: id must be positive, got %d", p, a.ID)
			}
			if amenities[a.ID] {
				return fmt.Errorf("%s: duplicate id %d", p, a.ID)
			}
			amenities[a.ID] = true
			if strings.TrimSpace(a.Name) == "" {
				return fmt.Errorf("%s: name is required", p)
			}
			if a.Limits != nil {
				if _, err := a.Limits.ToModel(); err != nil {
					return fmt.Errorf("%s.limits: %w", p, err)
				}
			}
		}

		local := make(map[int64]bool)
		for j, b := range com.Blocks {
			p := fmt.Sprintf("%s.blocks[%d]", prefix, j)
			if b.ID <= 0 {
				return fmt.Errorf("%s: id must be positive, got %d", p, b.ID)
			}
			if blocks[b.ID] {
				return fmt.Errorf("%s: duplicate id %d", p, b.ID)
			}
			blocks[b.ID] = true
			local[b.ID] = true
		}
		for j, b := range com.Blocks {
			if b.Parent == nil {
				continue
			}
			p := fmt.Sprintf("%s.blocks[%d]", prefix, j)
			if *b.Parent == b.ID {
				return fmt.Errorf("%s: block cannot be its own parent", p)
			}
			if !local[*b.Parent] {
				return fmt.Errorf("%s: unknown parent block %d", p, *b.Parent)
			}
		}

		for j, u := range com.Units {
			p := fmt.Sprintf("%s.units[%d]", prefix, j)
			if u.ID <= 0 {
				return fmt.Errorf("%s: id must be positive, got %d", p, u.ID)
			}
			if units[u.ID] {
				return fmt.Errorf("%s: duplicate id %d", p, u.ID)
			}
			units[u.ID] = true
			if !local[u.Block] {
				return fmt.Errorf("%s: unknown block %d", p, u.Block)
			}
		}

		for j, m := range com.Members {
			p := fmt.Sprintf("%s.members[%d]", prefix, j)
			if m.User <= 0 {
				return fmt.Errorf("%s: user must be positive, got %d", p, m.User)
			}
			if strings.TrimSpace(m.Role) == "" {
				return fmt.Errorf("%s: role is required", p)
			}
			if m.Block != nil && !local[*m.Block] {
				return fmt.Errorf("%s: unknown block %d", p, *m.Block)
			}
		}
	}

	return nil
}

// ToModel converts and validates the limits.
func (l *LimitsConfig) ToModel() (*model.ReservationLimits, error) {
	if l == nil {
		return nil, nil
	}
	out := &model.ReservationLimits{}

	for i, d := range l.AllowedWeekdays {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("allowed_weekdays[%d]: invalid day %d, must be 0-6 (0=Sun)", i, d)
		}
		out.AllowedWeekdays = append(out.AllowedWeekdays, time.Weekday(d))
	}

	if (l.ScheduleStart == "") != (l.ScheduleEnd == "") {
		return nil, fmt.Errorf("schedule_start and schedule_end must be set together")
	}
	if l.ScheduleStart != "" {
		start, err := model.ParseClock(l.ScheduleStart)
		if err != nil {
			return nil, fmt.Errorf("schedule_start: invalid format '%s', expected HH:MM", l.ScheduleStart)
		}
		end, err := model.ParseClock(l.ScheduleEnd)
		if err != nil {
			return nil, fmt.Errorf("schedule_end: invalid format '%s', expected HH:MM", l.ScheduleEnd)
		}
		if start == end {
			return nil, fmt.Errorf("schedule_start and schedule_end must differ")
		}
		out.ScheduleStart, out.ScheduleEnd = &start, &end
	}

	if l.MaxReservationsPerMonth != nil {
		if *l.MaxReservationsPerMonth <= 0 {
			return nil, fmt.Errorf("max_reservations_per_month must be positive")
		}
		v := *l.MaxReservationsPerMonth
		out.MaxReservationsPerMonth = &v
	}

	if l.MaxDurationHoursPerDay != "" {
		hours, err := decimal.NewFromString(l.MaxDurationHoursPerDay)
		if err != nil {
			return nil, fmt.Errorf("max_duration_hours_per_day: invalid number '%s'", l.MaxDurationHoursPerDay)
		}
		if !hours.IsPositive() || hours.GreaterThan(decimal.NewFromInt(24)) {
			return nil, fmt.Errorf("max_duration_hours_per_day must be in (0, 24]")
		}
		out.MaxDurationHoursPerDay = decimal.NewNullDecimal(hours)
	}

	for i, s := range l.ExceptionDates {
		d, err := model.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("exception_dates[%d]: invalid date format '%s', expected YYYY-MM-DD", i, s)
		}
		out.ExceptionDates = append(out.ExceptionDates, d)
	}

	return out, nil
}
