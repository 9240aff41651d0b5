package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bonairerentalhub/server/config"
	"bonairerentalhub/server/internal/database"
	"bonairerentalhub/server/internal/decoder"
	"bonairerentalhub/server/internal/geometry"
	"bonairerentalhub/server/internal/importer"
	"bonairerentalhub/server/internal/models"
	"bonairerentalhub/server/internal/normalize"
	"bonairerentalhub/server/internal/notify"
)

type ListingStore interface {
	GetListing(ctx context.Context, id uint) (*models.Listing, error)
	SearchListings(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error)
	InsertListing(ctx context.Context, listing *models.Listing) error
	ListCategories(ctx context.Context) ([]models.Category, error)
	UpsertCategory(ctx context.Context, category *models.Category) (bool, error)
	RecordClick(ctx context.Context, listingID uint, kind string) error
	CountClicks(ctx context.Context, listingID uint) (map[string]int64, error)
}

type Importer interface {
	Start(ctx context.Context, filename string, r io.Reader) (*importer.Result, error)
	Resolve(ctx context.Context, decision importer.Decision) (*importer.Result, error)
	Pending() (*importer.DuplicateDecision, bool)
	Abandon() (*importer.Result, error)
}

type Feed interface {
	List() []notify.Notification
}

type Handler struct {
	store          ListingStore
	importer       Importer
	feed           Feed
	region         config.Region
	categoryIcon   string
	maxUploadBytes int64
	logger         *logrus.Logger
}

type ClickRequest struct {
	Kind string `json:"kind" binding:"required"`
}

type DecisionRequest struct {
	Decision string `json:"decision" binding:"required"`
}

type RegionResponse struct {
	Name      string    `json:"name"`
	Center    []float64 `json:"center"`
	ZoomLevel int       `json:"zoom_level"`
	Bounds    []float64 `json:"bounds"`
	Areas     []string  `json:"areas"`
}

type ClickStatsResponse struct {
	ListingID uint             `json:"listing_id"`
	Total     int64            `json:"total"`
	ByKind    map[string]int64 `json:"by_kind"`
}

func NewHandler(store ListingStore, imp Importer, feed Feed, region config.Region, categoryIcon string, maxUploadBytes int64, logger *logrus.Logger) *Handler {
	return &Handler{
		store:          store,
		importer:       imp,
		feed:           feed,
		region:         region,
		categoryIcon:   categoryIcon,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// SearchListings returns active listings. An optional near=lat,lng query
// orders them by distance from that point.
func (h *Handler) SearchListings(c *gin.Context) {
	var filter models.ListingFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.logger.WithError(err).Error("Failed to parse listing filter")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filter parameters"})
		return
	}

	var lat, lng float64
	near := c.Query("near")
	if near != "" {
		var ok bool
		if lat, lng, ok = parsePoint(near); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "near must be formatted as lat,lng"})
			return
		}
	}

	listings, err := h.store.SearchListings(c.Request.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to search listings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get listings"})
		return
	}

	if near != "" {
		geometry.SortByDistance(listings, lat, lng)
	}
	c.JSON(http.StatusOK, listings)
}

func parsePoint(s string) (float64, float64, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

func (h *Handler) GetListing(c *gin.Context) {
	id, ok := h.listingID(c)
	if !ok {
		return
	}

	listing, err := h.store.GetListing(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("listing_id", id).Error("Failed to get listing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get listing"})
		return
	}

	c.JSON(http.StatusOK, listing)
}

// RecordClick counts a visitor following one of a listing's contact links
func (h *Handler) RecordClick(c *gin.Context) {
	id, ok := h.listingID(c)
	if !ok {
		return
	}

	var req ClickRequest
	if err := c.ShouldBindJSON(&req); err != nil || !models.ClickKinds[req.Kind] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be one of phone, website or directions"})
		return
	}

	if _, err := h.store.GetListing(c.Request.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
			return
		}
		h.logger.WithError(err).WithField("listing_id", id).Error("Failed to get listing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record click"})
		return
	}

	if err := h.store.RecordClick(c.Request.Context(), id, req.Kind); err != nil {
		h.logger.WithError(err).WithField("listing_id", id).Error("Failed to record click")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record click"})
		return
	}

	c.Status(http.StatusNoContent)
}

// GetClickStats reports how often each contact link of a listing was followed
func (h *Handler) GetClickStats(c *gin.Context) {
	id, ok := h.listingID(c)
	if !ok {
		return
	}

	if _, err := h.store.GetListing(c.Request.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
			return
		}
		h.logger.WithError(err).WithField("listing_id", id).Error("Failed to get listing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get click stats"})
		return
	}

	counts, err := h.store.CountClicks(c.Request.Context(), id)
	if err != nil {
		h.logger.WithError(err).WithField("listing_id", id).Error("Failed to count clicks")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get click stats"})
		return
	}

	stats := ClickStatsResponse{ListingID: id, ByKind: make(map[string]int64, len(models.ClickKinds))}
	for kind := range models.ClickKinds {
		stats.ByKind[kind] = counts[kind]
		stats.Total += counts[kind]
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) listingID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing id"})
		return 0, false
	}
	return uint(id), true
}

// GetRegion describes the map area the directory covers
func (h *Handler) GetRegion(c *gin.Context) {
	c.JSON(http.StatusOK, RegionResponse{
		Name:      h.region.Name,
		Center:    h.region.Center,
		ZoomLevel: h.region.ZoomLevel,
		Bounds:    h.region.Bounds,
		Areas:     h.region.GetAreaNames(),
	})
}

func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.store.ListCategories(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list categories")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get categories"})
		return
	}

	c.JSON(http.StatusOK, categories)
}

// CreateListing stores a listing entered by hand in the admin dashboard
func (h *Handler) CreateListing(c *gin.Context) {
	var form normalize.ListingForm
	if err := c.ShouldBindJSON(&form); err != nil {
		h.logger.WithError(err).Error("Invalid listing form")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	listing := normalize.FromForm(form)
	if listing.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
		return
	}

	if listing.Category != "" {
		category := &models.Category{ID: listing.Category, Name: listing.DisplayCategory, Icon: h.categoryIcon}
		if _, err := h.store.UpsertCategory(c.Request.Context(), category); err != nil {
			h.logger.WithError(err).WithField("category", category.ID).Error("Failed to store category")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save category"})
			return
		}
	}

	if err := h.store.InsertListing(c.Request.Context(), &listing); err != nil {
		h.logger.WithError(err).WithField("listing", listing.Name).Error("Failed to create listing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save listing"})
		return
	}

	c.JSON(http.StatusCreated, listing)
}

// StartImport runs an uploaded CSV or XLSX file through the importer
func (h *Handler) StartImport(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.logger.WithError(err).Error("Failed to read uploaded file")
		c.JSON(http.StatusBadRequest, gin.H{"error": "A file field is required"})
		return
	}
	defer file.Close()

	result, err := h.importer.Start(c.Request.Context(), header.Filename, file)
	if err != nil {
		var decodeErr *decoder.DecodeError
		switch {
		case errors.Is(err, importer.ErrImportPending):
			c.JSON(http.StatusConflict, gin.H{"error": "Another import is awaiting a decision"})
		case errors.As(err, &decodeErr), errors.Is(err, decoder.ErrUnsupportedFormat):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.WithError(err).Error("Failed to run import")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run import"})
		}
		return
	}

	c.JSON(resultStatus(result, http.StatusCreated), result)
}

func resultStatus(result *importer.Result, completed int) int {
	if result.State == importer.StateAwaitingDecision {
		return http.StatusAccepted
	}
	return completed
}

func (h *Handler) GetPendingDecision(c *gin.Context) {
	pending, ok := h.importer.Pending()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No import is awaiting a decision"})
		return
	}

	c.JSON(http.StatusOK, pending)
}

func (h *Handler) ResolveDecision(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "decision is required"})
		return
	}

	decision, err := importer.ParseDecision(req.Decision)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "decision must be one of create, merge or ignore"})
		return
	}

	result, err := h.importer.Resolve(c.Request.Context(), decision)
	if errors.Is(err, importer.ErrNoPendingDecision) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No import is awaiting a decision"})
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("decision", decision).Error("Failed to apply decision")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply decision"})
		return
	}

	c.JSON(resultStatus(result, http.StatusOK), result)
}

func (h *Handler) AbandonImport(c *gin.Context) {
	result, err := h.importer.Abandon()
	if errors.Is(err, importer.ErrNoPendingDecision) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No import is awaiting a decision"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to abandon import")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to abandon import"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) ListNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, h.feed.List())
}
