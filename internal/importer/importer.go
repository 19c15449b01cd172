// Package importer loads relay snapshot files into the relay store.
//
// A snapshot file is JSON:
//
//	{"valid_after": "2026-10-01T12:00:00Z", "relays": [{...}, ...]}
//
// A relay may carry its raw server descriptor under "descriptor"; the
// contact line is taken from it when "contact" is absent.
//
// Each relay is normalised, sanitised and validated on its own; invalid
// records are skipped and counted. Relays without a location are enriched
// from GeoIP when a resolver is configured. Everything accepted is written
// as one snapshot.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Shugur-Network/torstatus/internal/constants"
	"github.com/Shugur-Network/torstatus/internal/geo"
	"github.com/Shugur-Network/torstatus/internal/logger"
	"github.com/Shugur-Network/torstatus/internal/metrics"
	"github.com/Shugur-Network/torstatus/internal/models"
	"github.com/Shugur-Network/torstatus/internal/relayutil"
	"github.com/Shugur-Network/torstatus/internal/workers"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// ErrEmptySnapshot is returned when no record of a snapshot survives
// validation.
var ErrEmptySnapshot = errors.New("snapshot contains no valid relays")

// SnapshotWriter persists a snapshot.
type SnapshotWriter interface {
	SaveSnapshot(ctx context.Context, snap *models.Snapshot) (int, error)
}

// Result summarises one import.
type Result struct {
	ValidAfter time.Time
	Imported   int
	Rejected   int
	Enriched   int
}

// Importer validates and stores snapshots.
type Importer struct {
	store    SnapshotWriter
	resolver geo.Resolver
	workers  int
	validate *validator.Validate
	policy   *bluemonday.Policy
	log      *zap.Logger
}

// New returns an importer writing to store. resolver may be nil, in which
// case no enrichment happens.
func New(store SnapshotWriter, resolver geo.Resolver, workerCount int) *Importer {
	return &Importer{
		store:    store,
		resolver: resolver,
		workers:  workerCount,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		policy:   bluemonday.StrictPolicy(),
		log:      logger.New("importer"),
	}
}

// ImportFile imports the snapshot file at path.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()
	return im.Import(ctx, f)
}

// Import reads one snapshot document from r and stores it.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Result, error) {
	var snap models.Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if snap.ValidAfter.IsZero() {
		return nil, errors.New("snapshot has no valid_after")
	}
	snap.ValidAfter = snap.ValidAfter.UTC().Truncate(time.Second)

	res := &Result{ValidAfter: snap.ValidAfter}
	snap.Relays = im.accept(snap.ValidAfter, snap.Relays, res)
	if len(snap.Relays) == 0 {
		return res, ErrEmptySnapshot
	}

	enriched, err := im.enrich(ctx, snap.Relays)
	if err != nil {
		return res, err
	}
	res.Enriched = enriched

	n, err := im.store.SaveSnapshot(ctx, &snap)
	if err != nil {
		return res, fmt.Errorf("saving snapshot: %w", err)
	}
	res.Imported = n
	metrics.RelaysImported.Add(float64(n))

	im.log.Info("Snapshot imported",
		zap.Time("valid_after", res.ValidAfter),
		zap.Int("imported", res.Imported),
		zap.Int("rejected", res.Rejected),
		zap.Int("enriched", res.Enriched))
	return res, nil
}

func (im *Importer) accept(validAfter time.Time, in []models.Relay, res *Result) []models.Relay {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for i := range in {
		relay := in[i]
		im.normalize(&relay, validAfter)

		if err := im.validate.Struct(&relay); err != nil {
			im.log.Warn("Skipping invalid relay", zap.String("fingerprint", relay.Fingerprint), zap.Error(err))
			res.Rejected++
			continue
		}
		if _, dup := seen[relay.Fingerprint]; dup {
			im.log.Warn("Skipping duplicate relay", zap.String("fingerprint", relay.Fingerprint))
			res.Rejected++
			continue
		}
		seen[relay.Fingerprint] = struct{}{}
		out = append(out, relay)
	}
	return out
}

func (im *Importer) normalize(r *models.Relay, validAfter time.Time) {
	r.ValidAfter = validAfter
	r.Fingerprint = strings.ToUpper(strings.TrimSpace(r.Fingerprint))
	r.Address = strings.TrimSpace(r.Address)
	r.Country = strings.ToLower(strings.TrimSpace(r.Country))
	r.Nickname = im.clean(r.Nickname)
	r.Hostname = im.clean(r.Hostname)
	if r.Contact == "" && r.Descriptor != "" {
		if c := relayutil.ExtractContact(r.Descriptor); c != constants.DefaultContactSentinel {
			r.Contact = c
		}
	}
	r.Descriptor = ""
	r.Contact = im.clean(r.Contact)
	r.Platform = im.clean(r.Platform)
	if !r.Published.IsZero() {
		r.Published = r.Published.UTC().Truncate(time.Second)
	}
}

// clean strips markup and leaves plain text; templates escape on output.
func (im *Importer) clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(im.policy.Sanitize(s)))
}

func (im *Importer) enrich(ctx context.Context, relays []models.Relay) (int, error) {
	if im.resolver == nil {
		return 0, nil
	}

	wp := workers.NewWorkerPool(im.workers, len(relays))
	defer wp.Stop()

	var enriched atomic.Int64
	for i := range relays {
		if relays[i].HasGeo() {
			continue
		}
		relay := &relays[i]
		if err := wp.Submit(ctx, func() {
			if geo.Enrich(im.resolver, relay) {
				enriched.Add(1)
			}
		}); err != nil {
			wp.Wait()
			return int(enriched.Load()), fmt.Errorf("enriching relays: %w", err)
		}
	}
	wp.Wait()
	return int(enriched.Load()), nil
}
