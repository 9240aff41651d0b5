package commands

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bonairerentalhub/server/internal/categories"
	"bonairerentalhub/server/internal/database"
	"bonairerentalhub/server/internal/importer"
	"bonairerentalhub/server/internal/models"
	"bonairerentalhub/server/internal/notify"
)

func setupImporter(t *testing.T, opts importer.Options) (*importer.Importer, *database.Store) {
	db, err := database.NewTestDB()
	require.NoError(t, err)
	require.NoError(t, database.MigrateSchema(db))
	store := database.NewStore(db)
	t.Cleanup(func() { store.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	feed := notify.NewFeed(10)
	extractor := categories.NewExtractor(store, feed, "store", 1, logger)
	return importer.NewImporter(store, extractor, feed, opts, logger), store
}

func TestNewDecider(t *testing.T) {
	d, err := newDecider("merge", nil, nil)
	require.NoError(t, err)
	decision, err := d(&importer.DuplicateDecision{})
	require.NoError(t, err)
	assert.Equal(t, importer.DecisionMerge, decision)

	_, err = newDecider("replace", nil, nil)
	assert.ErrorIs(t, err, importer.ErrInvalidDecision)
}

func TestPromptDecider(t *testing.T) {
	var out bytes.Buffer
	d := promptDecider(strings.NewReader("maybe\nm\n"), &out)

	decision, err := d(&importer.DuplicateDecision{DuplicateName: "Alpha", Row: 2})
	require.NoError(t, err)
	assert.Equal(t, importer.DecisionMerge, decision)
	assert.Equal(t, 2, strings.Count(out.String(), `"Alpha" already exists (row 2)`))

	_, err = d(&importer.DuplicateDecision{DuplicateName: "Bravo"})
	assert.Error(t, err)
}

func TestRunBatchResumesThroughDuplicates(t *testing.T) {
	imp, store := setupImporter(t, importer.Options{ResumeAfterDecision: true})
	ctx := context.Background()
	require.NoError(t, store.InsertListing(ctx, &models.Listing{Name: "Alpha", Status: models.StatusActive}))
	require.NoError(t, store.InsertListing(ctx, &models.Listing{Name: "Charlie", Status: models.StatusActive}))

	d, err := newDecider("create", nil, nil)
	require.NoError(t, err)

	result, err := runBatch(ctx, imp, "rows.csv", strings.NewReader("title\nAlpha\nBravo\nCharlie\n"), d)
	require.NoError(t, err)
	assert.Equal(t, importer.StateCompleted, result.State)
	assert.Len(t, result.Persisted, 3)

	listings, err := store.SearchListings(ctx, models.ListingFilter{})
	require.NoError(t, err)
	assert.Len(t, listings, 5)

	var out bytes.Buffer
	printResult(&out, result)
	assert.Contains(t, out.String(), "saved:         3")
}

func TestRunBatchAbandonsWithoutDecision(t *testing.T) {
	imp, store := setupImporter(t, importer.Options{})
	ctx := context.Background()
	require.NoError(t, store.InsertListing(ctx, &models.Listing{Name: "Alpha", Status: models.StatusActive}))

	d := promptDecider(strings.NewReader(""), &bytes.Buffer{})
	_, err := runBatch(ctx, imp, "rows.csv", strings.NewReader("title\nAlpha\n"), d)
	assert.Error(t, err)

	_, pending := imp.Pending()
	assert.False(t, pending)
}
