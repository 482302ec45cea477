// Package store models the on-disk market data tree: day folders named
// YYYY-MM-DD, each holding one subdirectory per sport id, each holding the
// recorded market files. Everything here is read-only selection; the actions
// that mutate files live elsewhere.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const dateLayout = "2006-01-02"

var ErrNotFound = errors.New("base directory not found")

type DateFolder struct {
	Name string
	Path string
	Date time.Time // UTC midnight
}

type CategoryFolder struct {
	Name string
	Path string
}

// AgeDays returns the whole number of days between the UTC midnight of day
// and the UTC midnight of now. Future days yield a negative age.
func AgeDays(now, day time.Time) int {
	nowMid := midnightUTC(now)
	dayMid := midnightUTC(day)

	return int(nowMid.Sub(dayMid).Hours() / 24)
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()

	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SelectDateFolders returns the day folders directly under baseDir, sorted by
// name (for YYYY-MM-DD names that equals chronological order). Entries that
// are not directories or do not parse as dates are skipped silently. With
// maxAgeDays >= 0 only folders aged 0..maxAgeDays relative to now qualify;
// maxAgeDays < 0 means no window.
func SelectDateFolders(baseDir string, maxAgeDays int, now time.Time) ([]DateFolder, error) {
	info, err := os.Stat(baseDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, baseDir)
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, baseDir)
	}

	var ans []DateFolder

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		day, err := time.ParseInLocation(dateLayout, entry.Name(), time.UTC)
		if err != nil {
			continue
		}

		if maxAgeDays >= 0 {
			age := AgeDays(now, day)
			if age < 0 || age > maxAgeDays {
				continue
			}
		}

		ans = append(ans, DateFolder{
			Name: entry.Name(),
			Path: filepath.Join(baseDir, entry.Name()),
			Date: day,
		})
	}

	// ReadDir sorts by name already, keep the guarantee explicit anyway
	sort.Slice(ans, func(i, j int) bool { return ans[i].Name < ans[j].Name })

	return ans, nil
}

// SelectCategoryFolders returns the sport directories directly under folder,
// sorted by name. With a non-empty filter only members are returned; filter
// names with no matching directory are skipped, not errors. Without a filter
// the enumeration accepts only numeric names unless anyName is set, since the
// recorder only ever creates numeric event-type directories.
func SelectCategoryFolders(folder DateFolder, filter []string, anyName bool) ([]CategoryFolder, error) {
	entries, err := os.ReadDir(folder.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", folder.Path, err)
	}

	allowed := make(map[string]struct{}, len(filter))
	for _, name := range filter {
		allowed[name] = struct{}{}
	}

	var ans []CategoryFolder

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		if len(allowed) > 0 {
			if _, ok := allowed[entry.Name()]; !ok {
				continue
			}
		} else if !anyName && !isNumeric(entry.Name()) {
			continue
		}

		ans = append(ans, CategoryFolder{
			Name: entry.Name(),
			Path: filepath.Join(folder.Path, entry.Name()),
		})
	}

	sort.Slice(ans, func(i, j int) bool { return ans[i].Name < ans[j].Name })

	return ans, nil
}

// ListFiles returns the regular files directly inside dir whose name passes
// pred, sorted by name. Subdirectories are not descended into.
func ListFiles(dir string, pred func(name string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var ans []string

	for _, entry := range entries {
		if entry.IsDir() || !entry.Type().IsRegular() {
			continue
		}

		if pred != nil && !pred(entry.Name()) {
			continue
		}

		ans = append(ans, filepath.Join(dir, entry.Name()))
	}

	sort.Strings(ans)

	return ans, nil
}

// IsEmptyTree reports whether dir contains no regular files at any depth.
func IsEmptyTree(dir string) (bool, error) {
	empty := true

	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.Type().IsRegular() {
			empty = false

			return fs.SkipAll
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	return empty, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}
