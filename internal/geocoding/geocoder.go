package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"bonairerentalhub/server/internal/geometry"
)

const (
	nominatimURL = "https://nominatim.openstreetmap.org/search"
	cacheFile    = "geocode_cache.json"
)

var (
	ErrNoResults     = errors.New("no geocoding results")
	ErrOutsideRegion = errors.New("geocoded location is outside the region")
)

type Geocoder struct {
	logger      *logrus.Logger
	region      geometry.Region
	cacheDir    string
	cache       map[string][]float64
	cacheLock   sync.RWMutex
	client      *http.Client
	baseURL     string
	minInterval time.Duration
	lastRequest time.Time
	requestLock sync.Mutex
}

// NewGeocoder creates a Nominatim geocoder restricted to the region. An empty
// cacheDir keeps the cache in memory only.
func NewGeocoder(region geometry.Region, cacheDir string, logger *logrus.Logger) *Geocoder {
	g := &Geocoder{
		logger:      logger,
		region:      region,
		cacheDir:    cacheDir,
		cache:       make(map[string][]float64),
		client:      &http.Client{Timeout: 10 * time.Second},
		baseURL:     nominatimURL,
		minInterval: time.Second,
	}

	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			logger.WithError(err).Warn("Could not create geocode cache directory")
		}
		g.loadCache()
	}

	return g
}

// WithBaseURL points the geocoder at another Nominatim-compatible endpoint and
// disables request spacing, for tests.
func (g *Geocoder) WithBaseURL(baseURL string) *Geocoder {
	g.baseURL = baseURL
	g.minInterval = 0
	return g
}

func (g *Geocoder) loadCache() {
	data, err := os.ReadFile(filepath.Join(g.cacheDir, cacheFile))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			g.logger.WithError(err).Warn("Could not load geocode cache")
		}
		return
	}

	if err := json.Unmarshal(data, &g.cache); err != nil {
		g.logger.WithError(err).Error("Failed to parse geocode cache")
		return
	}

	g.logger.Infof("Loaded %d cached addresses", len(g.cache))
}

func (g *Geocoder) saveCache() {
	if g.cacheDir == "" {
		return
	}

	g.cacheLock.RLock()
	data, err := json.Marshal(g.cache)
	g.cacheLock.RUnlock()
	if err != nil {
		g.logger.WithError(err).Error("Failed to marshal geocode cache")
		return
	}

	if err := os.WriteFile(filepath.Join(g.cacheDir, cacheFile), data, 0644); err != nil {
		g.logger.WithError(err).Error("Failed to save geocode cache")
	}
}

type nominatimResponse []struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// GeocodeAddress resolves a street address and area to coordinates inside the
// region.
func (g *Geocoder) GeocodeAddress(ctx context.Context, address, area string) (float64, float64, error) {
	cacheKey := strings.ToLower(fmt.Sprintf("%s|%s", address, area))
	parts := []string{address}
	if area != "" {
		parts = append(parts, area)
	}
	parts = append(parts, g.region.Name)
	fullAddress := strings.Join(parts, ", ")

	g.cacheLock.RLock()
	coords, ok := g.cache[cacheKey]
	g.cacheLock.RUnlock()
	if ok && len(coords) == 2 {
		g.logger.WithFields(logrus.Fields{
			"address": fullAddress,
			"source":  "cache",
		}).Debug("Found coordinates in cache")
		return coords[0], coords[1], nil
	}

	if err := g.wait(ctx); err != nil {
		return 0, 0, err
	}

	params := url.Values{
		"q":            []string{fullAddress},
		"format":       []string{"json"},
		"limit":        []string{"1"},
		"countrycodes": []string{"bq"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", "BonaireRentalHub/1.0")
	req.Header.Set("Accept-Language", "en,nl;q=0.9,pap;q=0.8")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).WithField("address", fullAddress).Error("Geocoding request failed")
		return 0, 0, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("geocoding request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read response: %w", err)
	}

	var result nominatimResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, 0, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result) == 0 {
		g.logger.WithField("address", fullAddress).Warn("No results found")
		return 0, 0, fmt.Errorf("%w for address: %s", ErrNoResults, fullAddress)
	}

	lat, err := strconv.ParseFloat(result[0].Lat, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(result[0].Lon, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse longitude: %w", err)
	}

	if !g.region.Contains(lat, lon) {
		g.logger.WithFields(logrus.Fields{
			"address":   fullAddress,
			"latitude":  lat,
			"longitude": lon,
		}).Warn("Geocoded location outside region")
		return 0, 0, ErrOutsideRegion
	}

	g.logger.WithFields(logrus.Fields{
		"address":   fullAddress,
		"latitude":  lat,
		"longitude": lon,
		"source":    "nominatim",
	}).Info("Successfully geocoded address")

	g.cacheLock.Lock()
	g.cache[cacheKey] = []float64{lat, lon}
	g.cacheLock.Unlock()
	g.saveCache()

	return lat, lon, nil
}

// wait spaces requests per Nominatim's usage policy
func (g *Geocoder) wait(ctx context.Context) error {
	g.requestLock.Lock()
	defer g.requestLock.Unlock()

	if g.minInterval > 0 {
		if delay := g.minInterval - time.Since(g.lastRequest); delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	g.lastRequest = time.Now()
	return nil
}
