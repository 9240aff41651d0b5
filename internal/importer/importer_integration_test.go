package importer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bonairerentalhub/server/internal/categories"
	"bonairerentalhub/server/internal/database"
	"bonairerentalhub/server/internal/models"
)

func setupStoreImporter(t testing.TB, opts Options) (*Importer, *database.Store) {
	db, err := database.NewTestDB()
	require.NoError(t, err)
	require.NoError(t, database.MigrateSchema(db))
	store := database.NewStore(db)
	t.Cleanup(func() { store.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	notifier := &recordingNotifier{}
	extractor := categories.NewExtractor(store, notifier, "store", 4, logger)
	return NewImporter(store, extractor, notifier, opts, logger), store
}

func strPtr(s string) *string {
	return &s
}

func TestMergeKeepsExistingValuesForAbsentFields(t *testing.T) {
	imp, store := setupStoreImporter(t, Options{})
	ctx := context.Background()

	lat, lng := 12.15, -68.27
	existing := &models.Listing{
		Name:        "Sea Breeze",
		Category:    "apartments",
		Phone:       strPtr("+599 111"),
		Website:     strPtr("https://old.example"),
		Description: strPtr("Ocean view"),
		Latitude:    &lat,
		Longitude:   &lng,
		Status:      models.StatusActive,
	}
	require.NoError(t, store.InsertListing(ctx, existing))

	csv := "title,url,phone,location/lat\nSea Breeze,https://new.example,,north\n"
	result, err := imp.Start(ctx, "rows.csv", strings.NewReader(csv))
	require.NoError(t, err)
	require.Equal(t, StateAwaitingDecision, result.State)

	_, err = imp.Resolve(ctx, DecisionMerge)
	require.NoError(t, err)

	stored, err := store.GetListing(ctx, existing.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Website)
	assert.Equal(t, "https://new.example", *stored.Website)
	require.NotNil(t, stored.Phone)
	assert.Equal(t, "+599 111", *stored.Phone)
	require.NotNil(t, stored.Description)
	assert.Equal(t, "Ocean view", *stored.Description)
	assert.Equal(t, "apartments", stored.Category)
	require.NotNil(t, stored.Latitude)
	assert.Equal(t, lat, *stored.Latitude)
	assert.Equal(t, models.StatusActive, stored.Status)
}

func seedListing() models.Listing {
	lat, lng := 12.15, -68.27
	return models.Listing{
		Name:            "Sea Breeze",
		Category:        "apartments",
		DisplayCategory: "Apartments",
		Rating:          4.6,
		TotalReviews:    120,
		PriceLevel:      4,
		Languages:       []string{"en", "fr"},
		Phone:           strPtr("+599 111"),
		Website:         strPtr("https://old.example"),
		Address:         strPtr("Kaya Grandi 1"),
		Area:            strPtr("Kralendijk"),
		PostalCode:      strPtr("0000"),
		Description:     strPtr("Ocean view"),
		Amenities:       []string{"pool"},
		Images:          []string{"https://img.example/old.jpg"},
		Latitude:        &lat,
		Longitude:       &lng,
		OpeningHours:    models.OpeningHours{"monday": {Open: "08:00", Close: "16:00"}},
		Status:          models.StatusActive,
	}
}

func TestMergeWritesOnlyColumnsTheRowSupplies(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		values  string
		changed func(l *models.Listing)
	}{
		{
			name:    "Sparse row keeps every existing value",
			header:  "phone",
			values:  "+599 222",
			changed: func(l *models.Listing) { l.Phone = strPtr("+599 222") },
		},
		{
			name:    "Rating",
			header:  "totalscore",
			values:  "4.9",
			changed: func(l *models.Listing) { l.Rating = 4.9 },
		},
		{
			name:    "Review count",
			header:  "reviewscount",
			values:  "130",
			changed: func(l *models.Listing) { l.TotalReviews = 130 },
		},
		{
			name:    "Price level",
			header:  "price_level",
			values:  "$$",
			changed: func(l *models.Listing) { l.PriceLevel = 2 },
		},
		{
			name:    "Out of range numbers are not written",
			header:  "totalscore,reviewscount,price_level",
			values:  "9,1e30,7",
			changed: func(l *models.Listing) {},
		},
		{
			name:    "Languages",
			header:  "languages",
			values:  `"EN, PAP"`,
			changed: func(l *models.Listing) { l.Languages = []string{"en", "pap"} },
		},
		{
			name:   "Category",
			header: "categoryname",
			values: "Dive Shop",
			changed: func(l *models.Listing) {
				l.Category = "dive-shop"
				l.DisplayCategory = "Dive Shop"
			},
		},
		{
			name:   "Optional strings",
			header: "url,street,city,postal_code,description",
			values: "https://new.example,Kaya Gobernador 2,rincon,1111,Garden view",
			changed: func(l *models.Listing) {
				l.Website = strPtr("https://new.example")
				l.Address = strPtr("Kaya Gobernador 2")
				l.Area = strPtr("Rincon")
				l.PostalCode = strPtr("1111")
				l.Description = strPtr("Garden view")
			},
		},
		{
			name:   "Lists",
			header: "amenities,imageurl",
			values: `"wifi, parking",https://img.example/new.jpg`,
			changed: func(l *models.Listing) {
				l.Amenities = []string{"wifi", "parking"}
				l.Images = []string{"https://img.example/new.jpg"}
			},
		},
		{
			name:   "Coordinates",
			header: "location/lat,location/lng",
			values: "12.25,-68.33",
			changed: func(l *models.Listing) {
				lat, lng := 12.25, -68.33
				l.Latitude, l.Longitude = &lat, &lng
			},
		},
		{
			name:    "Half a coordinate pair is not written",
			header:  "location/lat",
			values:  "12.25",
			changed: func(l *models.Listing) {},
		},
		{
			name:   "Opening hours",
			header: "openinghours/0/day,openinghours/0/hours",
			values: "zondag,10:00 to 14:00",
			changed: func(l *models.Listing) {
				l.OpeningHours = models.OpeningHours{"sunday": {Open: "10:00", Close: "14:00"}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imp, store := setupStoreImporter(t, Options{})
			ctx := context.Background()

			existing := seedListing()
			require.NoError(t, store.InsertListing(ctx, &existing))

			csv := fmt.Sprintf("title,%s\nSea Breeze,%s\n", tt.header, tt.values)
			result, err := imp.Start(ctx, "rows.csv", strings.NewReader(csv))
			require.NoError(t, err)
			require.Equal(t, StateAwaitingDecision, result.State)

			result, err = imp.Resolve(ctx, DecisionMerge)
			require.NoError(t, err)
			require.Len(t, result.Persisted, 1)

			expected := seedListing()
			expected.ID = existing.ID
			tt.changed(&expected)

			stored, err := store.GetListing(ctx, existing.ID)
			require.NoError(t, err)
			stored.CreatedAt, stored.UpdatedAt = expected.CreatedAt, expected.UpdatedAt
			assert.Equal(t, expected, *stored)

			// The in-memory result mirrors what was stored
			merged := result.Persisted[0]
			merged.CreatedAt, merged.UpdatedAt, merged.Supplied = expected.CreatedAt, expected.UpdatedAt, nil
			assert.Equal(t, expected, merged)
		})
	}
}

func TestCreateStoresSecondListingWithSameName(t *testing.T) {
	imp, store := setupStoreImporter(t, Options{})
	ctx := context.Background()
	require.NoError(t, store.InsertListing(ctx, &models.Listing{Name: "Twin", Status: models.StatusActive}))

	_, err := imp.Start(ctx, "rows.csv", strings.NewReader("title\nTwin\n"))
	require.NoError(t, err)
	result, err := imp.Resolve(ctx, DecisionCreate)
	require.NoError(t, err)
	require.Len(t, result.Persisted, 1)
	assert.NotZero(t, result.Persisted[0].ID)

	listings, err := store.SearchListings(ctx, models.ListingFilter{Query: "twin"})
	require.NoError(t, err)
	assert.Len(t, listings, 2)
}

func TestImportingSameCategoryTwiceStoresOneRow(t *testing.T) {
	imp, store := setupStoreImporter(t, Options{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		csv := fmt.Sprintf("title,categoryname\nBoat %d,Boat Rental\n", i)
		result, err := imp.Start(ctx, "rows.csv", strings.NewReader(csv))
		require.NoError(t, err)
		require.Equal(t, StateCompleted, result.State)
	}

	stored, err := store.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, models.Category{ID: "boat-rental", Name: "Boat Rental", Icon: "store", CreatedAt: stored[0].CreatedAt}, stored[0])
}
