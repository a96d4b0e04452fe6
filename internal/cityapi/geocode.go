package cityapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gorodbot/server/internal/agent/model"
	logx "github.com/gorodbot/server/pkg/logger"
)

// Geocoder resolves a free-form address into candidate buildings.
type Geocoder interface {
	ResolveAddress(ctx context.Context, query string, limit int) ([]model.AddressCandidate, error)
}

type buildingSearchResponse struct {
	Data []struct {
		ID          json.Number `json:"id"`
		FullAddress string      `json:"full_address"`
		Latitude    float64     `json:"latitude"`
		Longitude   float64     `json:"longitude"`
	} `json:"data"`
}

// ResolveAddress runs the full-text building search on the geo host.
func (c *Client) ResolveAddress(ctx context.Context, query string, limit int) ([]model.AddressCandidate, error) {
	if limit <= 0 {
		limit = 5
	}
	if limit > 12 {
		limit = 12
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("count", strconv.Itoa(limit))
	params.Set("region_of_search", c.region)

	body, err := c.getJSON(ctx, "search_building", c.geoV2+"/geo/buildings/search/", params)
	if err != nil {
		return nil, err
	}

	var decoded buildingSearchResponse
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return nil, fmt.Errorf("decode building search: %w", err)
	}

	candidates := make([]model.AddressCandidate, 0, len(decoded.Data))
	for _, b := range decoded.Data {
		id, _ := b.ID.Int64()
		candidates = append(candidates, model.AddressCandidate{
			FullAddress: b.FullAddress,
			BuildingID:  id,
			Lat:         b.Latitude,
			Lon:         b.Longitude,
		})
	}
	return candidates, nil
}

// CachedGeocoder memoizes successful lookups in an LRU. Addresses repeat
// heavily across clarification turns of the same thread, so even a small
// cache removes most geo round trips.
type CachedGeocoder struct {
	inner Geocoder
	cache *lru.Cache[string, []model.AddressCandidate]
}

func NewCachedGeocoder(inner Geocoder, size int) (*CachedGeocoder, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, []model.AddressCandidate](size)
	if err != nil {
		return nil, fmt.Errorf("geocode cache: %w", err)
	}
	return &CachedGeocoder{inner: inner, cache: cache}, nil
}

func (g *CachedGeocoder) ResolveAddress(ctx context.Context, query string, limit int) ([]model.AddressCandidate, error) {
	key := cacheKey(query, limit)
	if cached, ok := g.cache.Get(key); ok {
		logx.Debug().Str("query", query).Msg("geocode cache hit")
		out := make([]model.AddressCandidate, len(cached))
		copy(out, cached)
		return out, nil
	}

	candidates, err := g.inner.ResolveAddress(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	stored := make([]model.AddressCandidate, len(candidates))
	copy(stored, candidates)
	g.cache.Add(key, stored)
	return candidates, nil
}

func cacheKey(query string, limit int) string {
	return strings.ToLower(strings.TrimSpace(query)) + "|" + strconv.Itoa(limit)
}

var (
	_ Geocoder = (*Client)(nil)
	_ Geocoder = (*CachedGeocoder)(nil)
)
