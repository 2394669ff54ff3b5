package analyzer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// LogBackup describes one file in the game's LogBackups folder.
type LogBackup struct {
	FileName  string    `json:"fileName"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"sizeBytes"`
	Build     string    `json:"build,omitempty"`
	Time      time.Time `json:"time"`
	HasMeta   bool      `json:"hasMeta"`
}

// Game Build(10188864) 12 Sep 25 (21 13 25).log
var backupNameRe = regexp.MustCompile(`Game Build\((\d+)\)\s+(\d{2})\s+(\w+)\s+(\d{2})\s+\((\d{2})\s+(\d{2})\s+(\d{2})\)\.log`)

const backupTimeLayout = "02 Jan 06 15 04 05"

// ParseLogBackupName extracts the build number and local start time from
// a backup file name. ok is false when the name does not follow the
// game's pattern.
func ParseLogBackupName(name string) (build string, t time.Time, ok bool) {
	m := backupNameRe.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, false
	}
	stamp := strings.Join([]string{m[2], m[3], m[4], m[5], m[6], m[7]}, " ")
	t, err := time.ParseInLocation(backupTimeLayout, stamp, time.Local)
	if err != nil {
		return "", time.Time{}, false
	}
	return m[1], t, true
}

// ListLogBackups returns the .log files in dir, newest first. Files whose
// names carry no timestamp come last, ordered by name. A missing directory
// yields an empty list.
func ListLogBackups(dir string) ([]LogBackup, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []LogBackup{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	backups := make([]LogBackup, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".log" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		b := LogBackup{
			FileName:  e.Name(),
			Path:      filepath.Join(dir, e.Name()),
			SizeBytes: info.Size(),
		}
		b.Build, b.Time, b.HasMeta = ParseLogBackupName(e.Name())
		backups = append(backups, b)
	}

	sort.SliceStable(backups, func(i, j int) bool {
		a, b := backups[i], backups[j]
		if a.HasMeta != b.HasMeta {
			return a.HasMeta
		}
		if a.HasMeta && !a.Time.Equal(b.Time) {
			return a.Time.After(b.Time)
		}
		return a.FileName < b.FileName
	})
	return backups, nil
}
