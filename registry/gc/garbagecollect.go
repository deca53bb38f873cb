// Package gc implements the registry's garbage collector (spec §4.H): a
// mark-and-sweep over the metadata index that deletes blobs no recorded
// manifest references. A manifest whose tags were all removed keeps its
// index row, so it and the blobs it references are not deleted. Grounded on distribution/distribution's
// registry/storage/garbagecollect.go MarkAndSweep but trimmed to the
// simpler algorithm this core specifies (no checkpointing, no distributed
// lock, no --mark-only/--sweep-only split) since online GC here relies on
// the safety horizon rather than an offline maintenance window.
package gc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/distribution-core/registry/internal/dcontext"
	"github.com/distribution-core/registry/metadata"
	"github.com/distribution-core/registry/metrics"
	"github.com/distribution-core/registry/registry/storage"
)

// DefaultSafetyHorizon is how old an unreferenced blob must be before the
// sweep phase will delete it, so a blob written moments ago by an
// in-flight manifest PUT (whose tag row hasn't landed yet) survives.
const DefaultSafetyHorizon = time.Hour

// DefaultSessionTTL is how long an upload session may sit idle before the
// collector reaps it as a prelude to the blob sweep.
const DefaultSessionTTL = 24 * time.Hour

// Options configures a single Run.
type Options struct {
	// SafetyHorizon overrides DefaultSafetyHorizon. Zero means default.
	SafetyHorizon time.Duration
	// SessionTTL overrides DefaultSessionTTL. Zero means default.
	SessionTTL time.Duration
	// DryRun reports what would be deleted without deleting it.
	DryRun bool
}

// Stats summarizes what a Run did.
type Stats struct {
	SessionsReaped int
	BlobsMarked    int
	BlobsScanned   int
	BlobsDeleted   int
	BytesReclaimed int64
	Errors         []error
}

// Collector runs mark-and-sweep GC over a BlobStore and metadata.Index.
type Collector struct {
	blobs *storage.BlobStore
	index metadata.Index
}

// New constructs a Collector.
func New(blobs *storage.BlobStore, index metadata.Index) *Collector {
	return &Collector{blobs: blobs, index: index}
}

// Run performs one full mark-and-sweep pass per spec §4.H:
//
//  1. Reap upload sessions idle past the session TTL (prelude).
//  2. Mark: union of ReachableManifestDigests and AllReferencedDigests —
//     every manifest digest reachable from a tag, and every blob digest any
//     manifest (reachable or not) refers to, since §4.E's dedup means a
//     blob backing a still-referenced layer must survive even if the
//     manifest that uploaded it first was since replaced.
//  3. Sweep: enumerate every blob on disk; delete any not in the marked
//     set whose ModTime is older than the safety horizon.
func (c *Collector) Run(ctx context.Context, opts Options) (Stats, error) {
	horizon := opts.SafetyHorizon
	if horizon == 0 {
		horizon = DefaultSafetyHorizon
	}
	sessionTTL := opts.SessionTTL
	if sessionTTL == 0 {
		sessionTTL = DefaultSessionTTL
	}

	logger := dcontext.GetLogger(ctx)
	stats := Stats{}

	reaped, err := c.reapExpiredSessions(ctx, sessionTTL)
	if err != nil {
		return stats, err
	}
	stats.SessionsReaped = reaped
	logger.Infof("gc: reaped %d expired upload sessions", reaped)

	marked, err := c.mark(ctx)
	if err != nil {
		return stats, err
	}
	stats.BlobsMarked = len(marked)
	logger.Infof("gc: mark phase complete, %d digests reachable", len(marked))

	cutoff := time.Now().Add(-horizon)
	if err := c.sweep(ctx, marked, cutoff, opts.DryRun, &stats); err != nil {
		return stats, err
	}
	logger.Infof("gc: sweep phase complete, scanned=%d deleted=%d reclaimed=%d bytes",
		stats.BlobsScanned, stats.BlobsDeleted, stats.BytesReclaimed)

	return stats, nil
}

func (c *Collector) reapExpiredSessions(ctx context.Context, ttl time.Duration) (int, error) {
	expired, err := c.index.ExpiredUploadSessions(ctx, time.Now().Add(-ttl))
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, s := range expired {
		if err := c.blobs.DeleteStaging(ctx, s.StagingPath); err != nil {
			return reaped, err
		}
		if err := c.index.DeleteUploadSession(ctx, s.ID); err != nil {
			return reaped, err
		}
		metrics.ActiveUploads.Dec(1)
		reaped++
	}
	return reaped, nil
}

// mark returns the union of every manifest digest reachable from a tag and
// every digest any manifest references, keyed as strings so blob and
// manifest digests (both sha256) compare uniformly.
func (c *Collector) mark(ctx context.Context) (map[string]struct{}, error) {
	reachable, err := c.index.ReachableManifestDigests(ctx)
	if err != nil {
		return nil, err
	}

	referenced, err := c.index.AllReferencedDigests(ctx)
	if err != nil {
		return nil, err
	}

	marked := make(map[string]struct{}, len(reachable)+len(referenced))
	for d := range reachable {
		marked[d.String()] = struct{}{}
	}
	for d := range referenced {
		marked[d.String()] = struct{}{}
	}
	return marked, nil
}

func (c *Collector) sweep(ctx context.Context, marked map[string]struct{}, cutoff time.Time, dryRun bool, stats *Stats) error {
	logger := dcontext.GetLogger(ctx)

	return c.blobs.Enumerate(ctx, func(info storage.BlobInfo) error {
		stats.BlobsScanned++

		if _, ok := marked[info.Digest.String()]; ok {
			return nil
		}
		if info.ModTime.After(cutoff) {
			// Too young: might be a just-uploaded blob backing an
			// in-flight manifest PUT that hasn't written its tag yet.
			return nil
		}

		if dryRun {
			logger.WithFields(logrus.Fields{"digest": info.Digest}).Info("gc: would delete unreferenced blob")
			return nil
		}

		if err := c.blobs.Delete(ctx, info.Digest); err != nil {
			stats.Errors = append(stats.Errors, err)
			return nil
		}

		stats.BlobsDeleted++
		stats.BytesReclaimed += info.Size
		logger.WithFields(logrus.Fields{"digest": info.Digest}).Info("gc: deleted unreferenced blob")
		return nil
	})
}
