// Package session scopes the scratch-directory lifetime that the original
// framework kept as process-global state (Framework::session, d_base,
// d_session) into an explicit handle passed to whoever needs it, per this
// project's "scope process-wide state into a handle" approach to that
// design note.
package session

import (
	"fmt"
	"os"
	"path/filepath"
)

// Session owns one scratch directory for intermediate disassembly/lift
// files, created in New and removed in Clean regardless of analysis
// outcome.
type Session struct {
	Base string
	Dir  string
}

// New creates base/jump_table-<pid>/ and returns a handle to it.
func New(base string) (*Session, error) {
	dir := filepath.Join(base, fmt.Sprintf("jump_table-%d", os.Getpid()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Session{Base: base, Dir: dir}, nil
}

// Path joins name onto this session's scratch directory.
func (s *Session) Path(name string) string { return filepath.Join(s.Dir, name) }

// Clean removes the scratch directory; it is safe to call even if New's
// directory was never populated.
func (s *Session) Clean() error { return os.RemoveAll(s.Dir) }
