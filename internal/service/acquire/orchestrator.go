package acquire

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/mc-provisioner/internal/clock"
	"github.com/oshokin/mc-provisioner/internal/digest"
	"github.com/oshokin/mc-provisioner/internal/domain/artifact"
	"github.com/oshokin/mc-provisioner/internal/logger"
	"github.com/oshokin/mc-provisioner/internal/service/fetch"
)

const (
	// DefaultPaceMin is the default lower bound of the pause between fetches, in minutes.
	DefaultPaceMin = 5
	// DefaultPaceMax is the default upper bound of the pause between fetches, in minutes.
	DefaultPaceMax = 15
)

// ErrUnknownArtifact is returned when the missing set names an artifact absent from configuration.
var ErrUnknownArtifact = errors.New("artifact is not declared in configuration")

// Summary reports what an acquisition run did, by artifact key.
type Summary struct {
	// Fetched lists every artifact whose bytes were transferred.
	Fetched []string
	// Written lists artifacts that passed verification and were saved.
	Written []string
	// Rejected lists artifacts whose content failed verification.
	Rejected []string
}

// Orchestrator fetches, verifies and writes missing artifacts one at a time.
// It is not safe for concurrent use; pacing state spans every group of a run.
type Orchestrator struct {
	// root is the directory holding the group directories.
	root string
	// fetcher transfers artifact bytes.
	fetcher fetch.Fetcher
	// writer persists verified content.
	writer Writer
	// pacer waits between two fetches.
	pacer Waiter
	// fetches counts transfers started during this run.
	fetches int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWriter replaces the default atomic writer.
func WithWriter(writer Writer) Option {
	return func(o *Orchestrator) {
		if writer != nil {
			o.writer = writer
		}
	}
}

// WithPacer replaces the default pacer.
func WithPacer(pacer Waiter) Option {
	return func(o *Orchestrator) {
		if pacer != nil {
			o.pacer = pacer
		}
	}
}

// New creates an orchestrator writing below root.
func New(root string, fetcher fetch.Fetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		root:    root,
		fetcher: fetcher,
		writer:  NewAtomicWriter(DefaultFileMode),
		pacer:   NewPacer(clock.Real(), DefaultPaceMin, DefaultPaceMax),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Acquire processes the missing set group by group in artifact.Groups order.
// Specs is the full configuration; names in missing must be declared there.
func (o *Orchestrator) Acquire(
	ctx context.Context,
	specs []artifact.Spec,
	missing artifact.MissingSet,
) (*Summary, error) {
	index := make(map[string]artifact.Spec, len(specs))
	for _, spec := range specs {
		index[spec.Key()] = spec
	}

	summary := new(Summary)

	for _, group := range artifact.Groups() {
		if err := o.acquireGroup(ctx, index, group, missing.Names(group), summary); err != nil {
			return summary, err
		}
	}

	logger.InfoKV(ctx, "Acquisition finished",
		"fetched", len(summary.Fetched),
		"written", len(summary.Written),
		"rejected", len(summary.Rejected))

	return summary, nil
}

func (o *Orchestrator) acquireGroup(
	ctx context.Context,
	index map[string]artifact.Spec,
	group string,
	names []string,
	summary *Summary,
) error {
	if len(names) == 0 {
		logger.DebugKV(ctx, "Nothing to acquire", "group", group)

		return nil
	}

	// Resolve every name first so a bad configuration fails before any transfer.
	specs := make([]artifact.Spec, 0, len(names))

	for _, name := range names {
		spec, ok := index[group+"/"+name]
		if !ok {
			return fmt.Errorf("%w: %s/%s", ErrUnknownArtifact, group, name)
		}

		specs = append(specs, spec)
	}

	for _, spec := range specs {
		if o.fetches > 0 {
			if err := o.pacer.Wait(ctx); err != nil {
				return err
			}
		}

		o.fetches++

		if err := o.acquireOne(ctx, spec, summary); err != nil {
			return err
		}
	}

	return nil
}

func (o *Orchestrator) acquireOne(ctx context.Context, spec artifact.Spec, summary *Summary) error {
	key := spec.Key()

	data, err := o.fetcher.Fetch(ctx, spec)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", key, err)
	}

	summary.Fetched = append(summary.Fetched, key)

	algorithm := digest.Algorithm(spec.Algorithm)
	if !digest.Matches(algorithm, data, spec.ExpectedDigest) {
		logger.WarnKV(ctx, "Downloaded artifact has an invalid hash, skipping",
			"artifact", key,
			"algorithm", spec.Algorithm,
			"expected", digest.Normalize(spec.ExpectedDigest),
			"actual", digest.Sum(algorithm, data))

		summary.Rejected = append(summary.Rejected, key)

		return nil
	}

	path := spec.Path(o.root)
	if err = o.writer.Write(ctx, spec, path, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	logger.InfoKV(ctx, "Artifact saved",
		"artifact", key,
		"path", path,
		"size", humanize.Bytes(uint64(len(data))))

	summary.Written = append(summary.Written, key)

	return nil
}
