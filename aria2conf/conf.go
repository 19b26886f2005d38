package aria2conf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aria2tools/trackerup/tracker"
)

// TrackerKey is the aria2 option that holds the tracker list.
const TrackerKey = "bt-tracker"

// ErrNotRegularFile is returned when the configured path is not a regular
// file.
var ErrNotRegularFile = errors.New("not a regular file")

// directiveValue returns the value of a bt-tracker directive line. Comments
// and other directives yield ok == false.
func directiveValue(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", false
	}

	key, value, found := strings.Cut(trimmed, "=")
	if !found || strings.TrimSpace(key) != TrackerKey {
		return "", false
	}

	return value, true
}

// splitLines splits content into lines that keep their line terminator.
func splitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}

	return strings.SplitAfter(string(content), "\n")
}

// lineEnding returns the terminator used by the file, defaulting to "\n".
func lineEnding(content []byte) string {
	if bytes.Contains(content, []byte("\r\n")) {
		return "\r\n"
	}

	return "\n"
}

// ParseTrackers returns the trackers named by every bt-tracker directive in
// content, in file order, without duplicates.
func ParseTrackers(content []byte) []string {
	set := tracker.NewSet()
	for _, line := range splitLines(content) {
		value, ok := directiveValue(line)
		if !ok {
			continue
		}

		for _, entry := range tracker.SplitList(value) {
			set.Add(entry)
		}
	}

	return set.Slice()
}

// ReadTrackers reads the aria2 configuration at path and returns the trackers
// it currently configures.
func ReadTrackers(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileError{Op: OpRead, Path: path, Err: err}
	}

	return ParseTrackers(content), nil
}

// Render returns content with its tracker directive set to trackers. The first
// bt-tracker line is rewritten in place and any later ones are removed; when
// there is none a new line is appended. Every other line is kept byte for
// byte and in order.
func Render(content []byte, trackers []string) []byte {
	eol := lineEnding(content)
	directive := TrackerKey + "=" + strings.Join(trackers, ",")

	var (
		out      strings.Builder
		replaced bool
	)
	for _, line := range splitLines(content) {
		if _, ok := directiveValue(line); !ok {
			out.WriteString(line)
			continue
		}

		if replaced {
			continue
		}
		replaced = true

		out.WriteString(directive)
		switch {
		case strings.HasSuffix(line, "\r\n"):
			out.WriteString("\r\n")
		case strings.HasSuffix(line, "\n"):
			out.WriteString("\n")
		}
	}

	if !replaced {
		if out.Len() > 0 && !strings.HasSuffix(out.String(), "\n") {
			out.WriteString(eol)
		}
		out.WriteString(directive)
		out.WriteString(eol)
	}

	return []byte(out.String())
}

// Updater applies a tracker set to aria2's configuration file.
type Updater struct {
	// Path is the aria2 configuration file.
	Path string

	// BackupEnabled makes Apply save the original content to
	// Path+BackupSuffix before modifying the file.
	BackupEnabled bool

	// BackupSuffix is appended to Path to name the backup.
	BackupSuffix string
}

// BackupPath returns the location of the backup copy.
func (u *Updater) BackupPath() string {
	return u.Path + u.BackupSuffix
}

// Check verifies that the configuration file exists, is a regular file and can
// be read.
func (u *Updater) Check() error {
	info, err := os.Stat(u.Path)
	if err != nil {
		return &FileError{Op: OpStat, Path: u.Path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return &FileError{
			Op: OpStat, Path: u.Path, Err: ErrNotRegularFile,
		}
	}

	f, err := os.Open(u.Path)
	if err != nil {
		return &FileError{Op: OpRead, Path: u.Path, Err: err}
	}

	return f.Close()
}

// Apply writes trackers into the bt-tracker directive of the configuration
// file. The file is read fully first; if backups are enabled the original is
// copied to BackupPath and a failed backup aborts the update. The new content
// replaces the file through a rename so a crash never leaves it half written.
func (u *Updater) Apply(ctx context.Context, trackers []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Write through symlinks instead of replacing the link itself.
	target, err := filepath.EvalSymlinks(u.Path)
	if err != nil {
		return &FileError{Op: OpStat, Path: u.Path, Err: err}
	}

	info, err := os.Stat(target)
	if err != nil {
		return &FileError{Op: OpStat, Path: u.Path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return &FileError{
			Op: OpStat, Path: u.Path, Err: ErrNotRegularFile,
		}
	}

	original, err := os.ReadFile(target)
	if err != nil {
		return &FileError{Op: OpRead, Path: u.Path, Err: err}
	}
	log.Debugf("Read %d bytes from %s", len(original), u.Path)

	if u.BackupEnabled {
		backup := u.BackupPath()
		err := WriteFileAtomic(backup, original, info)
		if err != nil {
			return &FileError{Op: OpBackup, Path: backup, Err: err}
		}
		log.Infof("Backed up %s to %s", u.Path, backup)
	}

	updated := Render(original, trackers)
	if bytes.Equal(updated, original) {
		log.Infof("%s already lists the %d tracker(s), nothing to "+
			"write", u.Path, len(trackers))

		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	err = WriteFileAtomic(target, updated, info)
	if err != nil {
		return &FileError{Op: OpWrite, Path: u.Path, Err: err}
	}

	log.Infof("Wrote %d tracker(s) to %s", len(trackers), u.Path)

	return nil
}

// String describes the updater for log lines.
func (u *Updater) String() string {
	return fmt.Sprintf("file %s", u.Path)
}
