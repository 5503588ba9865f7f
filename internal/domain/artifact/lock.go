package artifact

import "time"

// Pin records the digest confirmed for one artifact.
type Pin struct {
	Group     string
	Name      string
	Path      string
	Algorithm string
	Digest    string
	Size      int64
	Source    string
}

// Key returns "group/name".
func (p Pin) Key() string {
	return p.Group + "/" + p.Name
}

// Actor identifies who produced a lock.
type Actor struct {
	Hostname string
	Username string
}

// Lock is the set of pins produced by one run.
type Lock struct {
	// RunID identifies the run that produced the lock.
	RunID string
	// Generated is when the lock was produced.
	Generated time.Time
	// GeneratedBy is the host and user that ran the provisioner, nil when unknown.
	GeneratedBy *Actor
	// Artifacts holds one pin per confirmed artifact in configuration order.
	Artifacts []Pin
}

// Find returns the pin for group/name.
func (l *Lock) Find(group, name string) (Pin, bool) {
	for _, pin := range l.Artifacts {
		if pin.Group == group && pin.Name == name {
			return pin, true
		}
	}

	return Pin{}, false
}
