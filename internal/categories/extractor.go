// Package categories derives the category records referenced by an import
// batch and makes sure each one exists in the store.
package categories

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"bonairerentalhub/server/internal/decoder"
	"bonairerentalhub/server/internal/models"
	"bonairerentalhub/server/internal/normalize"
	"bonairerentalhub/server/internal/notify"
)

// Error reports a category that could not be stored
type Error struct {
	Category string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to store category %s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Store is the slice of the persistence gateway the extractor needs
type Store interface {
	UpsertCategory(ctx context.Context, category *models.Category) (bool, error)
}

type Extractor struct {
	store    Store
	notifier notify.Notifier
	icon     string
	workers  int
	logger   *logrus.Logger
}

func NewExtractor(store Store, notifier notify.Notifier, icon string, workers int, logger *logrus.Logger) *Extractor {
	if workers <= 0 {
		workers = 1
	}
	return &Extractor{
		store:    store,
		notifier: notifier,
		icon:     icon,
		workers:  workers,
		logger:   logger,
	}
}

// Labels returns the distinct non-empty category labels of the rows in
// first-seen order, keeping one label per slug.
func Labels(rows []decoder.RawRow) []string {
	seen := make(map[string]bool)
	labels := make([]string, 0)
	for _, row := range rows {
		label := row.Get("categoryname", "category")
		slug := normalize.Slugify(label)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		labels = append(labels, label)
	}
	return labels
}

// Extract persists every category referenced by the rows. Existing categories
// count as success. It returns all categories considered, in first-seen order,
// along with one *Error per category that could not be stored. All persistence
// has finished when Extract returns.
func (e *Extractor) Extract(ctx context.Context, batchID string, rows []decoder.RawRow) ([]models.Category, []error) {
	labels := Labels(rows)
	categories := make([]models.Category, len(labels))
	for i, label := range labels {
		slug := normalize.Slugify(label)
		categories[i] = models.Category{
			ID:   slug,
			Name: normalize.FormatCategoryName(slug),
			Icon: e.icon,
		}
	}

	errs := make([]error, len(categories))
	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup

	for i := range categories {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = e.persist(ctx, batchID, &categories[i])
		}(i)
	}
	wg.Wait()

	failures := make([]error, 0)
	for _, err := range errs {
		if err != nil {
			failures = append(failures, err)
		}
	}

	e.logger.WithFields(logrus.Fields{
		"batch_id":   batchID,
		"categories": len(categories),
		"failed":     len(failures),
	}).Info("Processed import categories")

	return categories, failures
}

func (e *Extractor) persist(ctx context.Context, batchID string, category *models.Category) error {
	created, err := e.store.UpsertCategory(ctx, category)
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"batch_id": batchID,
			"category": category.ID,
		}).Error("Failed to store category")
		e.notifier.Notify(notify.Notification{
			Level:   notify.LevelFailure,
			Title:   "Category not saved",
			Message: fmt.Sprintf("Could not save category %s", category.Name),
			BatchID: batchID,
		})
		return &Error{Category: category.ID, Err: err}
	}

	if created {
		e.logger.WithField("category", category.ID).Debug("Created category")
	}
	return nil
}
