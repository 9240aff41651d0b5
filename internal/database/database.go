package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"bonairerentalhub/server/config"
	"bonairerentalhub/server/internal/models"
)

var ErrNotFound = errors.New("record not found")

const defaultSearchLimit = 100

// Open connects to the configured relational store
func Open(cfg config.Database) (*gorm.DB, error) {
	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	switch cfg.Driver {
	case "postgres":
		db, err := gorm.Open(postgres.Open(cfg.DSN), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return db, nil
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err := gorm.Open(sqlite.Open(cfg.SQLitePath+"?_foreign_keys=on"), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// NewTestDB returns an isolated in-memory sqlite database
func NewTestDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// MigrateSchema creates or updates the listings, categories and listing_clicks tables
func MigrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Listing{}, &models.Category{}, &models.ListingClick{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Store is the persistence gateway over listings, categories and listing clicks
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetDB() *gorm.DB {
	return s.db
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// FindListingByName returns the first listing whose name equals name exactly, or nil
func (s *Store) FindListingByName(ctx context.Context, name string) (*models.Listing, error) {
	var listing models.Listing
	err := s.db.WithContext(ctx).Where("name = ?", name).Order("id").Take(&listing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find listing %q: %w", name, err)
	}
	return &listing, nil
}

func (s *Store) InsertListing(ctx context.Context, listing *models.Listing) error {
	if err := s.db.WithContext(ctx).Create(listing).Error; err != nil {
		return fmt.Errorf("failed to insert listing %q: %w", listing.Name, err)
	}
	return nil
}

// UpdateListing writes only the given columns of listing onto the record with id
func (s *Store) UpdateListing(ctx context.Context, id uint, listing *models.Listing, columns []string) error {
	if len(columns) == 0 {
		return nil
	}
	selected := append(append([]string(nil), columns...), "updated_at")

	result := s.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ?", id).
		Select(selected).
		Updates(listing)
	if result.Error != nil {
		return fmt.Errorf("failed to update listing %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to update listing %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) GetListing(ctx context.Context, id uint) (*models.Listing, error) {
	var listing models.Listing
	err := s.db.WithContext(ctx).First(&listing, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing %d: %w", id, err)
	}
	return &listing, nil
}

// SearchListings returns active listings matching the filter, ordered by name
func (s *Store) SearchListings(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	query := s.db.WithContext(ctx).Where("status = ?", models.StatusActive)

	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Area != "" {
		query = query.Where("LOWER(area) = LOWER(?)", filter.Area)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where("(LOWER(name) LIKE ? OR LOWER(COALESCE(description, '')) LIKE ?)", pattern, pattern)
	}

	limit := filter.Limit
	if limit <= 0 || limit > defaultSearchLimit {
		limit = defaultSearchLimit
	}

	listings := []models.Listing{}
	if err := query.Order("name").Limit(limit).Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	return listings, nil
}

// UpsertCategory inserts the category unless one with the same id already
// exists. It reports whether a row was created.
func (s *Store) UpsertCategory(ctx context.Context, category *models.Category) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Category{}).Where("id = ?", category.ID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check category %q: %w", category.ID, err)
	}
	if count > 0 {
		return false, nil
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(category)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert category %q: %w", category.ID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	if err := s.db.WithContext(ctx).Order("name").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// RecordClick stores a visitor interaction with a listing
func (s *Store) RecordClick(ctx context.Context, listingID uint, kind string) error {
	click := models.ListingClick{ListingID: listingID, Kind: kind}
	if err := s.db.WithContext(ctx).Create(&click).Error; err != nil {
		return fmt.Errorf("failed to record click for listing %d: %w", listingID, err)
	}
	return nil
}

// CountClicks returns the number of recorded interactions per kind for a listing
func (s *Store) CountClicks(ctx context.Context, listingID uint) (map[string]int64, error) {
	var rows []struct {
		Kind  string
		Total int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.ListingClick{}).
		Select("kind, COUNT(*) as total").
		Where("listing_id = ?", listingID).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count clicks for listing %d: %w", listingID, err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Kind] = r.Total
	}
	return counts, nil
}
