package aria2conf

import "fmt"

// Operations reported in a FileError.
const (
	OpStat   = "stat"
	OpRead   = "read"
	OpBackup = "backup"
	OpWrite  = "write"
)

// FileError reports a failure of the file channel together with the file and
// the step that failed.
type FileError struct {
	// Op is the step that failed, one of the Op constants.
	Op string

	// Path is the file the step operated on.
	Path string

	// Err is the underlying error.
	Err error
}

// Error returns a human readable description of the failure.
func (e *FileError) Error() string {
	return fmt.Sprintf("aria2 config %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FileError) Unwrap() error {
	return e.Err
}
