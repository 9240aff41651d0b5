// Package importer runs bulk listing imports and pauses a batch when a row's
// name already exists so an operator can decide what to do with it.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bonairerentalhub/server/internal/categories"
	"bonairerentalhub/server/internal/decoder"
	"bonairerentalhub/server/internal/geometry"
	"bonairerentalhub/server/internal/models"
	"bonairerentalhub/server/internal/normalize"
	"bonairerentalhub/server/internal/notify"
)

// Gateway is the listing side of the persistence gateway
type Gateway interface {
	FindListingByName(ctx context.Context, name string) (*models.Listing, error)
	InsertListing(ctx context.Context, listing *models.Listing) error
	UpdateListing(ctx context.Context, id uint, listing *models.Listing, columns []string) error
}

type CategoryExtractor interface {
	Extract(ctx context.Context, batchID string, rows []decoder.RawRow) ([]models.Category, []error)
}

type Geocoder interface {
	GeocodeAddress(ctx context.Context, address, area string) (float64, float64, error)
}

type Options struct {
	// ResumeAfterDecision continues scanning the rows after a resolved
	// duplicate instead of completing the batch.
	ResumeAfterDecision bool

	// Geocoder fills in coordinates for rows with an address but no location.
	Geocoder Geocoder

	// Region is used to flag rows located outside the island.
	Region *geometry.Region
}

type batch struct {
	listings []models.Listing
	next     int
	result   *Result
}

type Importer struct {
	gateway    Gateway
	categories CategoryExtractor
	notifier   notify.Notifier
	opts       Options
	logger     *logrus.Logger

	mu      sync.Mutex
	current *batch
}

func NewImporter(gateway Gateway, extractor CategoryExtractor, notifier notify.Notifier, opts Options, logger *logrus.Logger) *Importer {
	return &Importer{
		gateway:    gateway,
		categories: extractor,
		notifier:   notifier,
		opts:       opts,
		logger:     logger,
	}
}

// Start decodes and imports a file. The returned result is either completed
// or awaiting a decision on a duplicate name. A decode failure fails the whole
// batch before anything is written.
func (i *Importer) Start(ctx context.Context, filename string, r io.Reader) (*Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.current != nil {
		return nil, ErrImportPending
	}

	batchID := uuid.New().String()
	log := i.logger.WithFields(logrus.Fields{"batch_id": batchID, "file": filename})

	rows, err := decoder.Decode(filename, r)
	if err != nil {
		log.WithError(err).Error("Failed to decode import file")
		i.notifier.Notify(notify.Notification{
			Level:   notify.LevelFailure,
			Title:   "Import failed",
			Message: fmt.Sprintf("Could not read %s: %v", filename, err),
			BatchID: batchID,
		})
		return nil, err
	}
	log.WithField("rows", len(rows)).Info("Starting import")

	b := &batch{
		listings: make([]models.Listing, len(rows)),
		result: &Result{
			BatchID:    batchID,
			State:      StateScanning,
			Persisted:  make([]models.Listing, 0),
			Categories: make([]models.Category, 0),
			Failed:     make([]RowFailure, 0),
		},
	}

	// Categories must all exist before any listing is scanned
	extracted, errs := i.categories.Extract(ctx, batchID, rows)
	b.result.Categories = append(b.result.Categories, extracted...)
	for _, err := range errs {
		failure := RowFailure{Error: err.Error()}
		var categoryErr *categories.Error
		if errors.As(err, &categoryErr) {
			failure.Category = categoryErr.Category
		}
		b.result.Failed = append(b.result.Failed, failure)
	}

	for n, row := range rows {
		b.listings[n] = normalize.Normalize(row)
	}

	i.current = b
	i.scan(ctx, b)
	return i.finish(b), nil
}

// scan processes rows in order until the batch ends or a duplicate is found
func (i *Importer) scan(ctx context.Context, b *batch) {
	b.result.State = StateScanning

	for b.next < len(b.listings) {
		idx := b.next
		b.next++
		listing := &b.listings[idx]
		row := idx + 1
		log := i.logger.WithFields(logrus.Fields{
			"batch_id": b.result.BatchID,
			"row":      row,
			"listing":  listing.Name,
		})

		if listing.Name == "" {
			log.Debug("Skipping row without a name")
			b.result.Skipped++
			continue
		}

		i.locate(ctx, listing, log)

		existing, err := i.gateway.FindListingByName(ctx, listing.Name)
		if err != nil {
			i.fail(b, row, listing.Name, fmt.Errorf("failed to look up listing: %w", err))
			continue
		}

		if existing != nil {
			b.result.State = StateAwaitingDecision
			b.result.Pending = &DuplicateDecision{
				DuplicateName: listing.Name,
				Row:           row,
				Listing:       *listing,
				Existing:      existing,
			}
			log.WithField("existing_id", existing.ID).Info("Duplicate listing found, awaiting decision")
			i.notifier.Notify(notify.Notification{
				Level:   notify.LevelInfo,
				Title:   "Duplicate listing",
				Message: fmt.Sprintf("%s already exists. Choose create, merge or ignore.", listing.Name),
				Listing: listing.Name,
				BatchID: b.result.BatchID,
			})
			return
		}

		if err := i.gateway.InsertListing(ctx, listing); err != nil {
			i.fail(b, row, listing.Name, err)
			continue
		}

		b.result.Persisted = append(b.result.Persisted, *listing)
		log.Info("Listing added")
		i.notifier.Notify(notify.Notification{
			Level:   notify.LevelSuccess,
			Title:   "Listing added",
			Message: fmt.Sprintf("%s was added", listing.Name),
			Listing: listing.Name,
			BatchID: b.result.BatchID,
		})
	}

	b.result.State = StateCompleted
}

// locate geocodes rows without coordinates and flags rows outside the region
func (i *Importer) locate(ctx context.Context, listing *models.Listing, log *logrus.Entry) {
	if listing.Latitude == nil || listing.Longitude == nil {
		if i.opts.Geocoder == nil || listing.Address == nil {
			return
		}

		area := ""
		if listing.Area != nil {
			area = *listing.Area
		}
		lat, lng, err := i.opts.Geocoder.GeocodeAddress(ctx, *listing.Address, area)
		if err != nil {
			log.WithError(err).Warn("Could not geocode listing address")
			return
		}
		listing.Latitude, listing.Longitude = &lat, &lng
		return
	}

	if i.opts.Region != nil && !i.opts.Region.ContainsListing(listing) {
		log.WithFields(logrus.Fields{
			"latitude":  *listing.Latitude,
			"longitude": *listing.Longitude,
		}).Warn("Listing coordinates are outside the region")
	}
}

func (i *Importer) fail(b *batch, row int, name string, err error) {
	i.logger.WithError(err).WithFields(logrus.Fields{
		"batch_id": b.result.BatchID,
		"row":      row,
		"listing":  name,
	}).Error("Failed to import listing")

	b.result.Failed = append(b.result.Failed, RowFailure{Row: row, Listing: name, Error: err.Error()})
	i.notifier.Notify(notify.Notification{
		Level:   notify.LevelFailure,
		Title:   "Listing not saved",
		Message: fmt.Sprintf("Could not save %s: %v", name, err),
		Listing: name,
		BatchID: b.result.BatchID,
	})
}

// finish snapshots the result and releases a completed batch
func (i *Importer) finish(b *batch) *Result {
	if b.result.State == StateCompleted {
		b.result.Pending = nil
		i.current = nil

		i.logger.WithFields(logrus.Fields{
			"batch_id":    b.result.BatchID,
			"persisted":   len(b.result.Persisted),
			"skipped":     b.result.Skipped,
			"failed":      len(b.result.Failed),
			"unprocessed": b.result.Unprocessed,
		}).Info("Import completed")
		i.notifier.Notify(notify.Notification{
			Level: notify.LevelInfo,
			Title: "Import complete",
			Message: fmt.Sprintf("%d saved, %d skipped, %d failed, %d not processed",
				len(b.result.Persisted), b.result.Skipped, len(b.result.Failed), b.result.Unprocessed),
			BatchID: b.result.BatchID,
		})
	}
	return b.result.clone()
}

// Pending returns the duplicate the current batch is waiting on
func (i *Importer) Pending() (*DuplicateDecision, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.current == nil || i.current.result.Pending == nil {
		return nil, false
	}
	p := *i.current.result.Pending
	return &p, true
}

// Resolve applies the operator's decision to the pending duplicate. If the
// decision cannot be applied the batch stays paused on the same row.
func (i *Importer) Resolve(ctx context.Context, decision Decision) (*Result, error) {
	decision, err := ParseDecision(string(decision))
	if err != nil {
		return nil, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.current == nil || i.current.result.Pending == nil {
		return nil, ErrNoPendingDecision
	}
	b := i.current
	pending := b.result.Pending
	log := i.logger.WithFields(logrus.Fields{
		"batch_id": b.result.BatchID,
		"row":      pending.Row,
		"listing":  pending.DuplicateName,
		"decision": decision,
	})

	if err := i.apply(ctx, b, pending, decision); err != nil {
		log.WithError(err).Error("Failed to apply duplicate decision")
		i.notifier.Notify(notify.Notification{
			Level:   notify.LevelFailure,
			Title:   "Decision not applied",
			Message: fmt.Sprintf("Could not %s %s: %v", decision, pending.DuplicateName, err),
			Listing: pending.DuplicateName,
			BatchID: b.result.BatchID,
		})
		return nil, err
	}
	log.Info("Applied duplicate decision")
	b.result.Pending = nil

	if i.opts.ResumeAfterDecision {
		i.scan(ctx, b)
	} else {
		b.result.Unprocessed = len(b.listings) - b.next
		b.result.State = StateCompleted
	}
	return i.finish(b), nil
}

func (i *Importer) apply(ctx context.Context, b *batch, pending *DuplicateDecision, decision Decision) error {
	name := pending.DuplicateName

	switch decision {
	case DecisionCreate:
		listing := pending.Listing
		listing.ID = 0
		if err := i.gateway.InsertListing(ctx, &listing); err != nil {
			return err
		}
		b.result.Persisted = append(b.result.Persisted, listing)
		i.notifier.Notify(notify.Notification{
			Level:   notify.LevelSuccess,
			Title:   "Listing added",
			Message: fmt.Sprintf("%s was added as a new listing", name),
			Listing: name,
			BatchID: b.result.BatchID,
		})

	case DecisionMerge:
		if pending.Existing == nil {
			return errors.New("no existing listing to merge into")
		}
		incoming := pending.Listing
		if err := i.gateway.UpdateListing(ctx, pending.Existing.ID, &incoming, incoming.MergeColumns()); err != nil {
			return err
		}
		merged := *pending.Existing
		merged.ApplyMerge(&incoming)
		b.result.Persisted = append(b.result.Persisted, merged)
		i.notifier.Notify(notify.Notification{
			Level:   notify.LevelSuccess,
			Title:   "Listing updated",
			Message: fmt.Sprintf("%s was merged into the existing listing", name),
			Listing: name,
			BatchID: b.result.BatchID,
		})

	case DecisionIgnore:
		i.notifier.Notify(notify.Notification{
			Level:   notify.LevelSuccess,
			Title:   "Listing ignored",
			Message: fmt.Sprintf("%s was left unchanged", name),
			Listing: name,
			BatchID: b.result.BatchID,
		})
	}
	return nil
}

// Abandon discards the paused batch. Rows already written stay in the store.
func (i *Importer) Abandon() (*Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.current == nil {
		return nil, ErrNoPendingDecision
	}
	b := i.current
	i.current = nil

	// The pending row counts as unprocessed
	b.result.Unprocessed = len(b.listings) - b.next + 1
	b.result.Pending = nil
	b.result.State = StateCompleted

	i.logger.WithFields(logrus.Fields{
		"batch_id":    b.result.BatchID,
		"unprocessed": b.result.Unprocessed,
	}).Info("Import abandoned")
	i.notifier.Notify(notify.Notification{
		Level:   notify.LevelInfo,
		Title:   "Import abandoned",
		Message: fmt.Sprintf("%d rows were not processed", b.result.Unprocessed),
		BatchID: b.result.BatchID,
	})
	return b.result.clone(), nil
}
