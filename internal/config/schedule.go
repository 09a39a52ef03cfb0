package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// ScheduleFile is the TOML document named by ATOM_SCHEDULE_FILE:
//
//	groups = ["1/3", "2/3", "3/3", "1/2", "2/2", "1/1", "j1", "j2"]
//
//	[short_schedule]
//	1 = "8:00-8:30"
//	2 = "8:35-9:05"
type ScheduleFile struct {
	Groups        []string          `toml:"groups"`
	ShortSchedule map[string]string `toml:"short_schedule"`
}

// LoadSchedule reads and decodes a schedule file.
func LoadSchedule(path string) (*ScheduleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseSchedule(data)
}

// ParseSchedule decodes a schedule document, rejecting unknown keys.
func ParseSchedule(data []byte) (*ScheduleFile, error) {
	var schedule ScheduleFile
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&schedule); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	return &schedule, nil
}

// Apply copies the settings present in the file onto cfg. Absent sections
// leave the environment-derived values untouched.
func (s *ScheduleFile) Apply(cfg *Config) error {
	if len(s.Groups) > 0 {
		cfg.Groups = append([]string(nil), s.Groups...)
	}
	if len(s.ShortSchedule) > 0 {
		schedule := make(map[int]string, len(s.ShortSchedule))
		for key, hours := range s.ShortSchedule {
			slot, err := strconv.Atoi(key)
			if err != nil {
				return fmt.Errorf("short_schedule key %q is not a slot number", key)
			}
			schedule[slot] = hours
		}
		cfg.ShortSchedule = schedule
	}
	return nil
}
