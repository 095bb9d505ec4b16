// Package scripts implements the signed, persistent named-script
// repository (the "script repository" component): save/load/list/delete
// of named bridge scripts backed by a single JSON index file on disk,
// each entry tamper-evident via an HMAC-SHA-256 signature over its code.
package scripts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/langbridge/bridge-engine/internal/metrics"
	"github.com/langbridge/bridge-engine/internal/protocol"
)

// SavedScript is one entry in the repository index.
type SavedScript struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Code         string    `json:"code"`
	Description  string    `json:"description,omitempty"`
	Author       string    `json:"author,omitempty"`
	CreatedDate  time.Time `json:"created_date"`
	LastModified time.Time `json:"last_modified"`
	FolderPath   string    `json:"folder_path,omitempty"`
	Version      int       `json:"version"`
	Signature    string    `json:"signature"`
}

// index is the on-disk shape of the repository file.
type index struct {
	Scripts map[string]*SavedScript `json:"scripts"`
}

// Repository is safe for concurrent use.
type Repository struct {
	path          string
	signingSecret []byte

	mu  sync.RWMutex
	idx index
}

var sanitizePattern = regexp.MustCompile(`[^a-z0-9_-]+`)
var collapseUnderscores = regexp.MustCompile(`_+`)

// sanitize lowercases name and strips anything outside [a-z0-9_-],
// collapsing runs of underscores produced by the strip down to one.
func sanitize(name string) string {
	s := strings.ToLower(name)
	s = sanitizePattern.ReplaceAllString(s, "_")
	s = collapseUnderscores.ReplaceAllString(s, "_")
	return strings.Trim(s, "_-")
}

// Open loads the repository index from path, creating an empty one if
// the file does not yet exist.
func Open(path string, signingSecret string) (*Repository, error) {
	r := &Repository{
		path:          path,
		signingSecret: []byte(signingSecret),
		idx:           index{Scripts: make(map[string]*SavedScript)},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, protocol.Wrap(protocol.KindConfig, err)
	}
	if len(data) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(data, &r.idx); err != nil {
		return nil, protocol.Wrap(protocol.KindSerialization, err)
	}
	if r.idx.Scripts == nil {
		r.idx.Scripts = make(map[string]*SavedScript)
	}
	return r, nil
}

// persist rewrites the whole index file. Callers must hold r.mu.
func (r *Repository) persist() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return protocol.Wrap(protocol.KindConfig, err)
	}
	data, err := json.MarshalIndent(r.idx, "", "  ")
	if err != nil {
		return protocol.Wrap(protocol.KindSerialization, err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return protocol.Wrap(protocol.KindConfig, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return protocol.Wrap(protocol.KindConfig, err)
	}
	return nil
}

// Save creates or overwrites the script named name, bumping its version
// and re-signing its code. folderPath is optional and used for
// directory-style lookup via LoadByPath.
func (r *Repository) Save(name, code, description, author, folderPath string) (*SavedScript, error) {
	clean := sanitize(name)
	if clean == "" {
		return nil, protocol.New(protocol.KindConfig, "script name sanitizes to empty string")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := timeNow()
	existing, had := r.idx.Scripts[clean]

	s := &SavedScript{
		ID:           clean,
		Name:         name,
		Code:         code,
		Description:  description,
		Author:       author,
		LastModified: now,
		FolderPath:   folderPath,
		Version:      1,
	}
	if had {
		s.CreatedDate = existing.CreatedDate
		s.Version = existing.Version + 1
	} else {
		s.CreatedDate = now
	}
	s.Signature = sign(r.signingSecret, s.Code)

	r.idx.Scripts[clean] = s
	if err := r.persist(); err != nil {
		return nil, err
	}
	metrics.IncScriptSaved()
	return s, nil
}

// Load returns the script named name, verifying its signature first.
// A signature mismatch returns KindTamper rather than the stale/altered
// script.
func (r *Repository) Load(name string) (*SavedScript, error) {
	r.mu.RLock()
	s, ok := r.idx.Scripts[sanitize(name)]
	r.mu.RUnlock()
	if !ok {
		metrics.IncScriptLoaded("not_found")
		return nil, protocol.New(protocol.KindNotFound, "no script named "+name)
	}
	if !verify(r.signingSecret, s.Code, s.Signature) {
		metrics.IncScriptLoaded("tamper")
		return nil, protocol.New(protocol.KindTamper, "script signature does not match stored code for "+name)
	}
	metrics.IncScriptLoaded("ok")
	clone := *s
	return &clone, nil
}

// LoadByPath splits path at its last "/" into (folderPath, name) after
// trimming leading/trailing slashes, then returns the script matching
// that (name, folderPath) pair: an exact match first, falling back to a
// case-insensitive match if none is found exactly.
func (r *Repository) LoadByPath(path string) (*SavedScript, error) {
	folderPath, name := splitPath(path)

	r.mu.RLock()
	match := findByFolderAndName(r.idx.Scripts, folderPath, name, false)
	if match == nil {
		match = findByFolderAndName(r.idx.Scripts, folderPath, name, true)
	}
	r.mu.RUnlock()

	if match == nil {
		return nil, protocol.New(protocol.KindNotFound, "no script at path "+path)
	}
	if !verify(r.signingSecret, match.Code, match.Signature) {
		return nil, protocol.New(protocol.KindTamper, "script signature does not match stored code at "+path)
	}
	clone := *match
	return &clone, nil
}

// splitPath normalizes leading/trailing slashes off path and splits it
// at its last "/" into (folderPath, name).
func splitPath(path string) (folderPath, name string) {
	trimmed := strings.Trim(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return "", trimmed
	}
	return trimmed[:idx], trimmed[idx+1:]
}

// findByFolderAndName returns the first script whose (FolderPath, Name)
// matches (folderPath, name), compared case-insensitively when
// caseInsensitive is true.
func findByFolderAndName(scripts map[string]*SavedScript, folderPath, name string, caseInsensitive bool) *SavedScript {
	for _, s := range scripts {
		sFolder, sName := strings.Trim(s.FolderPath, "/"), s.Name
		if caseInsensitive {
			if strings.EqualFold(sFolder, folderPath) && strings.EqualFold(sName, name) {
				return s
			}
			continue
		}
		if sFolder == folderPath && sName == name {
			return s
		}
	}
	return nil
}

// List returns every script's metadata, sorted by name. Code and
// Signature are left empty on the returned entries.
func (r *Repository) List() []*SavedScript {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*SavedScript, 0, len(r.idx.Scripts))
	for _, s := range r.idx.Scripts {
		clone := *s
		clone.Code = ""
		clone.Signature = ""
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Delete removes the script named name. Deleting a name that does not
// exist is not an error.
func (r *Repository) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.idx.Scripts, sanitize(name))
	return r.persist()
}

var timeNow = func() time.Time { return time.Now().UTC() }
