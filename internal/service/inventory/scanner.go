package inventory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/oshokin/mc-provisioner/internal/digest"
	"github.com/oshokin/mc-provisioner/internal/domain/artifact"
	"github.com/oshokin/mc-provisioner/internal/logger"
)

// Status is the outcome of inspecting one artifact on disk.
type Status string

const (
	// StatusNotFound means no file exists at the designated path.
	StatusNotFound Status = "not found"
	// StatusEmpty means the file exists but has no content.
	StatusEmpty Status = "empty"
	// StatusInvalidHash means the file content does not match the expected digest.
	StatusInvalidHash Status = "invalid hash"
	// StatusValid means the file content matches the expected digest.
	StatusValid Status = "valid"
)

// errNotRegularFile is returned when the designated path is a directory or device.
var errNotRegularFile = errors.New("not a regular file")

// Satisfied reports whether the status leaves the artifact off the missing list.
func (s Status) Satisfied() bool {
	return s == StatusValid
}

// Inspection describes what was found at an artifact's designated path.
type Inspection struct {
	// Status is the classification of the file.
	Status Status
	// Size is the file size in bytes, zero when the file is absent.
	Size int64
	// Digest is the computed hex digest, empty unless the file had content.
	Digest string
}

// Inspect classifies the file at path against spec using cache for hashing.
func Inspect(cache *digest.Cache, spec artifact.Spec, path string) (Inspection, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Inspection{Status: StatusNotFound}, nil
	}

	if err != nil {
		return Inspection{}, fmt.Errorf("stat %s: %w", path, err)
	}

	if !info.Mode().IsRegular() {
		return Inspection{}, fmt.Errorf("%s: %w", path, errNotRegularFile)
	}

	if info.Size() == 0 {
		return Inspection{Status: StatusEmpty}, nil
	}

	algorithm := digest.Algorithm(spec.Algorithm)

	sum, err := cache.SumFile(algorithm, path)
	if err != nil {
		return Inspection{}, err
	}

	inspection := Inspection{
		Status: StatusInvalidHash,
		Size:   info.Size(),
		Digest: sum,
	}

	if digest.MatchesSum(algorithm, sum, spec.ExpectedDigest) {
		inspection.Status = StatusValid
	}

	return inspection, nil
}

// Result is the outcome of a scan.
type Result struct {
	// Missing lists, per group, the names that need (re)download in spec order.
	Missing artifact.MissingSet
	// Records holds one record per scanned spec; valid artifacts are confirmed.
	Records []*artifact.Record
	// Statuses maps artifact keys to their inspection status.
	Statuses map[string]Status
}

// Scanner inspects the artifacts below a root directory.
type Scanner struct {
	// root is the directory holding the group directories.
	root string
	// cache memoizes file digests.
	cache *digest.Cache
}

// NewScanner creates a scanner for root. A nil cache gets a private one.
func NewScanner(root string, cache *digest.Cache) *Scanner {
	if cache == nil {
		cache = digest.NewCache(digest.DefaultCacheExpiration)
	}

	return &Scanner{
		root:  root,
		cache: cache,
	}
}

// Scan inspects every spec and returns the missing set. It logs one line per artifact.
func (s *Scanner) Scan(ctx context.Context, specs []artifact.Spec) (*Result, error) {
	result := &Result{
		Missing:  make(artifact.MissingSet, len(artifact.Groups())),
		Records:  make([]*artifact.Record, 0, len(specs)),
		Statuses: make(map[string]Status, len(specs)),
	}

	for _, spec := range specs {
		record := artifact.NewRecord(spec, s.root)

		inspection, err := Inspect(s.cache, spec, record.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("inspect %s: %w", spec.Key(), err)
		}

		logInspection(ctx, record, inspection)

		result.Statuses[spec.Key()] = inspection.Status
		result.Records = append(result.Records, record)

		if inspection.Status.Satisfied() {
			record.MarkValid()
			continue
		}

		result.Missing.Add(spec.Group, spec.Name)
	}

	return result, nil
}

func logInspection(ctx context.Context, record *artifact.Record, inspection Inspection) {
	kvs := []any{
		"artifact", record.Spec.Key(),
		"path", record.LocalPath,
		"status", string(inspection.Status),
	}

	switch inspection.Status {
	case StatusValid:
		logger.InfoKV(ctx, "Artifact is valid", kvs...)
	case StatusInvalidHash:
		kvs = append(kvs, "expected", digest.Normalize(record.Spec.ExpectedDigest), "actual", inspection.Digest)
		logger.WarnKV(ctx, "Artifact has an invalid hash", kvs...)
	default:
		logger.InfoKV(ctx, "Artifact is missing", kvs...)
	}
}
