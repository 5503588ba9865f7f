package artifact

import (
	"path/filepath"
	"slices"
)

const (
	// GroupBin holds server jars.
	GroupBin = "bin"
	// GroupPlugins holds plugin jars.
	GroupPlugins = "plugins"

	// Extension is appended to every artifact name to form its file name.
	Extension = ".jar"
)

// Groups returns the artifact groups in processing order.
func Groups() []string {
	return []string{GroupBin, GroupPlugins}
}

// Spec describes an artifact that should exist on disk. It is immutable once built.
type Spec struct {
	// Name is the artifact name, unique within its group.
	Name string
	// Group is the logical bucket and target directory of the artifact.
	Group string
	// Source is the URI the artifact is fetched from.
	Source string
	// ExpectedDigest is the hex-encoded content digest.
	ExpectedDigest string
	// Algorithm names the digest function used for ExpectedDigest.
	Algorithm string
}

// Key returns "group/name", a stable identifier for logs and maps.
func (s Spec) Key() string {
	return s.Group + "/" + s.Name
}

// FileName returns the artifact file name, e.g. "fabric-loader.jar".
func (s Spec) FileName() string {
	return s.Name + Extension
}

// Path returns the designated location of the artifact below root.
func (s Spec) Path(root string) string {
	return filepath.Join(root, s.Group, s.FileName())
}

// Record tracks the observed state of one artifact during a run.
type Record struct {
	// Spec is the artifact declaration.
	Spec Spec
	// LocalPath is where the artifact is expected on disk.
	LocalPath string
	// Valid reports whether the file at LocalPath matched the expected digest.
	Valid bool
}

// NewRecord creates an unconfirmed record for spec below root.
func NewRecord(spec Spec, root string) *Record {
	return &Record{
		Spec:      spec,
		LocalPath: spec.Path(root),
	}
}

// MarkValid confirms the record. Records never become invalid again within a run.
func (r *Record) MarkValid() {
	r.Valid = true
}

// MissingSet maps a group name to the ordered names that need (re)download.
type MissingSet map[string][]string

// Add appends name to the group's missing list.
func (m MissingSet) Add(group, name string) {
	m[group] = append(m[group], name)
}

// Names returns the missing names for group. An absent group yields nil.
func (m MissingSet) Names(group string) []string {
	return m[group]
}

// Contains reports whether name is listed as missing in group.
func (m MissingSet) Contains(group, name string) bool {
	return slices.Contains(m[group], name)
}

// Len returns the total number of missing artifacts across all groups.
func (m MissingSet) Len() int {
	total := 0
	for _, names := range m {
		total += len(names)
	}

	return total
}

// AllValid reports whether every record is confirmed.
func AllValid(records []*Record) bool {
	for _, record := range records {
		if !record.Valid {
			return false
		}
	}

	return true
}
