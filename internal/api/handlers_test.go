package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bonairerentalhub/server/config"
	"bonairerentalhub/server/internal/categories"
	"bonairerentalhub/server/internal/database"
	"bonairerentalhub/server/internal/importer"
	"bonairerentalhub/server/internal/models"
	"bonairerentalhub/server/internal/notify"
)

type testEnv struct {
	router *gin.Engine
	store  *database.Store
	feed   *notify.Feed
}

func setupTestEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	db, err := database.NewTestDB()
	require.NoError(t, err)
	require.NoError(t, database.MigrateSchema(db))
	store := database.NewStore(db)
	t.Cleanup(func() { store.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	feed := notify.NewFeed(50)
	extractor := categories.NewExtractor(store, feed, "store", 2, logger)
	imp := importer.NewImporter(store, extractor, feed, importer.Options{}, logger)
	handler := NewHandler(store, imp, feed, config.Bonaire, "store", 1<<20, logger)

	return &testEnv{
		router: NewRouter(handler, []string{"*"}, logger),
		store:  store,
		feed:   feed,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/imports", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestImportFlow(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	phone := "+599 700 0000"
	require.NoError(t, env.store.InsertListing(ctx, &models.Listing{Name: "Bravo", Phone: &phone, Status: models.StatusActive}))

	csv := "title,categoryname,url\nAlpha,Boat Rental,https://alpha.example\nBravo,Boat Rental,https://bravo.example\nCharlie,Car Rental,\n"
	w := env.upload(t, "listings.csv", csv)
	require.Equal(t, http.StatusAccepted, w.Code)

	result := decode[importer.Result](t, w)
	assert.Equal(t, importer.StateAwaitingDecision, result.State)
	assert.Len(t, result.Persisted, 1)
	assert.Len(t, result.Categories, 2)

	w = env.do(t, http.MethodGet, "/api/admin/imports/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	pending := decode[importer.DuplicateDecision](t, w)
	assert.Equal(t, "Bravo", pending.DuplicateName)

	// A second upload is refused while the first waits
	w = env.upload(t, "listings.csv", csv)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/admin/imports/pending/decision", DecisionRequest{Decision: "merge"})
	require.Equal(t, http.StatusOK, w.Code)
	result = decode[importer.Result](t, w)
	assert.Equal(t, importer.StateCompleted, result.State)
	assert.Equal(t, 1, result.Unprocessed)

	merged, err := env.store.FindListingByName(ctx, "Bravo")
	require.NoError(t, err)
	require.NotNil(t, merged.Phone)
	assert.Equal(t, phone, *merged.Phone)
	require.NotNil(t, merged.Website)
	assert.Equal(t, "https://bravo.example", *merged.Website)

	w = env.do(t, http.MethodGet, "/api/admin/imports/pending", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/categories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Category](t, w), 2)

	w = env.do(t, http.MethodGet, "/api/admin/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	feed := decode[[]notify.Notification](t, w)
	require.NotEmpty(t, feed)
	assert.Equal(t, "Import complete", feed[0].Title)
}

func TestImportErrors(t *testing.T) {
	env := setupTestEnv(t)

	w := env.upload(t, "listings.pdf", "title\nAlpha\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.upload(t, "listings.csv", "title\n\"broken\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/admin/imports", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecisionErrors(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/admin/imports/pending/decision", DecisionRequest{Decision: "create"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/admin/imports/pending/decision", DecisionRequest{Decision: "overwrite"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/admin/imports/pending/decision", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, "/api/admin/imports/pending", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAbandonImport(t *testing.T) {
	env := setupTestEnv(t)
	require.NoError(t, env.store.InsertListing(context.Background(), &models.Listing{Name: "Alpha", Status: models.StatusActive}))

	w := env.upload(t, "listings.csv", "title\nAlpha\nBravo\n")
	require.Equal(t, http.StatusAccepted, w.Code)

	w = env.do(t, http.MethodDelete, "/api/admin/imports/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	result := decode[importer.Result](t, w)
	assert.Equal(t, 2, result.Unprocessed)

	found, err := env.store.FindListingByName(context.Background(), "Bravo")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestCreateAndBrowseListings(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/admin/listings", gin.H{
		"name":      "Kite Bonaire",
		"category":  "Kite School",
		"area":      "sorobon",
		"amenities": "lessons, storage",
		"latitude":  "12.08",
		"longitude": "-68.20",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[models.Listing](t, w)
	assert.Equal(t, "kite-school", created.Category)
	assert.Equal(t, []string{"lessons", "storage"}, created.Amenities)

	w = env.do(t, http.MethodPost, "/api/admin/listings", gin.H{
		"name":      "Town Scooters",
		"category":  "Scooter Rental",
		"area":      "Kralendijk",
		"latitude":  "12.1443",
		"longitude": "-68.2655",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/admin/listings", gin.H{"category": "Nameless"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/listings?area=Sorobon", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listings := decode[[]models.Listing](t, w)
	require.Len(t, listings, 1)
	assert.Equal(t, "Kite Bonaire", listings[0].Name)

	w = env.do(t, http.MethodGet, "/api/listings?near=12.15,-68.27", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listings = decode[[]models.Listing](t, w)
	require.Len(t, listings, 2)
	assert.Equal(t, "Town Scooters", listings[0].Name)

	w = env.do(t, http.MethodGet, "/api/listings?near=north", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/categories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Category](t, w), 2)
}

func TestGetListingAndClicks(t *testing.T) {
	env := setupTestEnv(t)
	listing := &models.Listing{Name: "Sea Breeze", Status: models.StatusActive}
	require.NoError(t, env.store.InsertListing(context.Background(), listing))
	path := "/api/listings/" + strconv.FormatUint(uint64(listing.ID), 10)

	w := env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Sea Breeze", decode[models.Listing](t, w).Name)

	tests := []struct {
		name     string
		path     string
		body     interface{}
		expected int
	}{
		{name: "Recorded", path: path + "/clicks", body: ClickRequest{Kind: "phone"}, expected: http.StatusNoContent},
		{name: "Unknown kind", path: path + "/clicks", body: ClickRequest{Kind: "email"}, expected: http.StatusBadRequest},
		{name: "Unknown listing", path: "/api/listings/999/clicks", body: ClickRequest{Kind: "website"}, expected: http.StatusNotFound},
		{name: "Bad id", path: "/api/listings/abc/clicks", body: ClickRequest{Kind: "website"}, expected: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.expected, w.Code)
		})
	}

	w = env.do(t, http.MethodPost, path+"/clicks", ClickRequest{Kind: "directions"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/admin"+strings.TrimPrefix(path, "/api")+"/clicks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[ClickStatsResponse](t, w)
	assert.Equal(t, listing.ID, stats.ListingID)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, map[string]int64{"phone": 1, "website": 0, "directions": 1}, stats.ByKind)

	w = env.do(t, http.MethodGet, "/api/admin/listings/999/clicks", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/listings/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRegion(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/region", nil)
	require.Equal(t, http.StatusOK, w.Code)

	region := decode[RegionResponse](t, w)
	assert.Equal(t, "bonaire", region.Name)
	assert.Equal(t, 11, region.ZoomLevel)
	assert.Equal(t, config.Bonaire.Center, region.Center)
	assert.Equal(t, config.Bonaire.Bounds, region.Bounds)
	assert.Contains(t, region.Areas, "Kralendijk")
	assert.Len(t, region.Areas, len(config.Bonaire.Areas))
}
