// Package workspace maps a user identifier to its isolated directory tree.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/atifdosyasi/dossier/internal/apperr"
)

// Paths are the filesystem locations owned by one user.
type Paths struct {
	Root        string
	Downloads   string
	Covers      string
	Generated   string
	SessionFile string
}

// Resolver creates and returns per-user directory trees under a base dir.
// Every path it hands out is a descendant of base/user_{userID}.
type Resolver struct {
	base string
}

// NewResolver returns a resolver rooted at base. The base directory itself
// is created on first Resolve.
func NewResolver(base string) *Resolver {
	return &Resolver{base: base}
}

// Base returns the base output directory shared by all users.
func (r *Resolver) Base() string { return r.base }

// safeUserID is the set of identifiers Resolve accepts. Registration
// mints UUIDs, which fit; anything with path separators or dot segments
// does not reach the filesystem.
var safeUserID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Resolve returns the workspace paths for userID, creating the directories
// on first use. Repeated calls return identical paths. An empty userID, or
// one carrying characters outside [A-Za-z0-9_-], fails with
// ErrUnauthorized: the identifier becomes a path component, so it is
// validated here rather than trusted from the transport layer.
func (r *Resolver) Resolve(userID string) (Paths, error) {
	if !safeUserID.MatchString(userID) {
		return Paths{}, apperr.ErrUnauthorized
	}
	root := filepath.Join(r.base, "user_"+userID)
	p := Paths{
		Root:        root,
		Downloads:   filepath.Join(root, "downloads"),
		Covers:      filepath.Join(root, "downloads", "covers"),
		Generated:   filepath.Join(root, "generated"),
		SessionFile: filepath.Join(root, "session_data.json"),
	}
	for _, dir := range []string{p.Root, p.Downloads, p.Covers, p.Generated} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Paths{}, fmt.Errorf("create workspace dir %s: %w", dir, err)
		}
	}
	return p, nil
}

// Contains reports whether path lies inside the user's workspace root.
// Used as the guard for the download and delete surfaces.
func (p Paths) Contains(path string) bool {
	return Within(p.Root, path)
}

// Within reports whether path is a descendant of base (or base itself),
// by lexical analysis of the cleaned absolute paths.
func Within(base, path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absBase, abs)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
