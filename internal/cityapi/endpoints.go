package cityapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Domain endpoints. Each method returns the raw JSON body of the gateway
// response; the tool layer decides how much of it reaches the user.

// ---- Geo / districts ----

func (c *Client) Districts(ctx context.Context) (string, error) {
	return c.getJSON(ctx, "get_districts", c.geoV2+"/geo/district/", nil)
}

func (c *Client) DistrictInfoByName(ctx context.Context, district string) (string, error) {
	params := url.Values{}
	params.Set("district_name", district)
	return c.getJSON(ctx, "district_info_by_name", c.siteURL("/districts-info/district/"), params)
}

func (c *Client) DistrictInfoByBuilding(ctx context.Context, buildingID int64) (string, error) {
	path := fmt.Sprintf("/districts-info/building-id/%d", buildingID)
	return c.getJSON(ctx, "district_info_by_building", c.siteURL(path), nil)
}

// ---- MFC ----

func (c *Client) NearestMFC(ctx context.Context, buildingID int64) (string, error) {
	params := url.Values{}
	params.Set("id_building", strconv.FormatInt(buildingID, 10))
	return c.getJSON(ctx, "mfc_nearest", c.siteURL("/mfc/"), params)
}

func (c *Client) MFCByDistrict(ctx context.Context, district string) (string, error) {
	params := url.Values{}
	params.Set("district", district)
	return c.getJSON(ctx, "mfc_by_district", c.siteURL("/mfc/district/"), params)
}

func (c *Client) AllMFC(ctx context.Context) (string, error) {
	return c.getJSON(ctx, "mfc_all", c.siteURL("/mfc/all/"), nil)
}

// ---- Healthcare / education ----

func (c *Client) PolyclinicsByBuilding(ctx context.Context, buildingID int64) (string, error) {
	params := url.Values{}
	params.Set("id", strconv.FormatInt(buildingID, 10))
	return c.getJSON(ctx, "polyclinics", c.siteURL("/polyclinics/"), params)
}

func (c *Client) LinkedSchools(ctx context.Context, buildingID int64) (string, error) {
	path := fmt.Sprintf("/school/linked/%d", buildingID)
	params := url.Values{}
	params.Set("scheme", "1")
	return c.getJSON(ctx, "schools_linked", c.siteURL(path), params)
}

func (c *Client) SchoolsMap(ctx context.Context, district string) (string, error) {
	params := url.Values{}
	if district != "" {
		params.Set("district", district)
	}
	return c.getJSON(ctx, "schools_map", c.siteURL("/school/map/"), params)
}

func (c *Client) Kindergartens(ctx context.Context, district string, count int) (string, error) {
	if count <= 0 {
		count = 10
	}
	params := url.Values{}
	params.Set("district", district)
	params.Set("legal_form", "Государственная")
	params.Set("doo_status", "Функционирует")
	params.Set("age_year", "3")
	params.Set("age_month", "0")
	params.Set("count", strconv.Itoa(count))
	params.Set("page", "1")
	return c.getJSON(ctx, "kindergartens", c.siteURL("/dou/"), params)
}

// ---- Housing ----

func (c *Client) ManagementCompany(ctx context.Context, buildingID int64) (string, error) {
	path := fmt.Sprintf("/mancompany/%d", buildingID)
	params := url.Values{}
	params.Set("region_of_search", c.region)
	return c.getJSON(ctx, "management_company", c.geoV1+path, params)
}

func (c *Client) Disconnections(ctx context.Context, buildingID int64) (string, error) {
	params := url.Values{}
	params.Set("building_id", strconv.FormatInt(buildingID, 10))
	return c.getJSON(ctx, "disconnections", c.siteURL("/disconnection/"), params)
}

// ---- Pets ----

func (c *Client) VetClinics(ctx context.Context, lat, lon float64, radiusKm int) (string, error) {
	params := petParams("Ветклиника", lat, lon, radiusKm)
	return c.getJSON(ctx, "vet_clinics", c.siteURL("/mypets/all-category/"), params)
}

func (c *Client) PetParks(ctx context.Context, lat, lon float64, radiusKm int) (string, error) {
	params := petParams("Парк", lat, lon, radiusKm)
	return c.getJSON(ctx, "pet_parks", c.siteURL("/mypets/all-category/"), params)
}

func (c *Client) PetShelters(ctx context.Context, lat, lon float64, radiusKm int) (string, error) {
	params := url.Values{}
	locationParams(params, lat, lon, radiusKm)
	return c.getJSON(ctx, "pet_shelters", c.siteURL("/mypets/shelters/"), params)
}

// ---- Pensioners ----

func (c *Client) PensionerServices(ctx context.Context, district string, count int) (string, error) {
	if count <= 0 {
		count = 10
	}
	params := url.Values{}
	params.Set("district", district)
	params.Set("count", strconv.Itoa(count))
	params.Set("page", "1")
	return c.getJSON(ctx, "pensioner_services", c.siteURL("/pensioner/services/"), params)
}

func (c *Client) PensionerHotlines(ctx context.Context, district string) (string, error) {
	params := url.Values{}
	params.Set("district", district)
	return c.getJSON(ctx, "pensioner_hotlines", c.siteURL("/pensioner/hotlines/district/"), params)
}

// ---- Events / recreation ----

func (c *Client) CityEvents(ctx context.Context, startDate, endDate string, count int) (string, error) {
	if count <= 0 {
		count = 10
	}
	params := url.Values{}
	params.Set("start_date", startDate)
	params.Set("end_date", endDate)
	params.Set("count", strconv.Itoa(count))
	params.Set("page", "1")
	return c.getJSON(ctx, "city_events", c.siteURL("/afisha/all/"), params)
}

func (c *Client) SportEvents(ctx context.Context, district string, count int) (string, error) {
	if count <= 0 {
		count = 10
	}
	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	params.Set("page", "1")
	if district != "" {
		params.Set("district", district)
	}
	return c.getJSON(ctx, "sport_events", c.siteURL("/sport-events/"), params)
}

func (c *Client) Sportgrounds(ctx context.Context, district string, count int) (string, error) {
	if count <= 0 {
		count = 10
	}
	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	params.Set("page", "1")
	if district != "" {
		params.Set("district", district)
	}
	return c.getJSON(ctx, "sportgrounds", c.siteURL("/sportgrounds/"), params)
}

func (c *Client) BeautifulPlaces(ctx context.Context, district string, count int) (string, error) {
	if count <= 0 {
		count = 10
	}
	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	params.Set("page", "1")
	if district != "" {
		params.Set("district", district)
	}
	return c.getJSON(ctx, "beautiful_places", c.siteURL("/beautiful_places/"), params)
}

func (c *Client) TouristRoutes(ctx context.Context, count int) (string, error) {
	if count <= 0 {
		count = 5
	}
	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	params.Set("page", "1")
	return c.getJSON(ctx, "tourist_routes", c.siteURL("/beautiful_places/routes/"), params)
}

// ---- Infrastructure ----

func (c *Client) RoadWorks(ctx context.Context, district string, count int) (string, error) {
	if count <= 0 {
		count = 10
	}
	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	params.Set("page", "1")
	if district != "" {
		params.Set("district", district)
	}
	return c.getJSON(ctx, "road_works", c.siteURL("/road-works/"), params)
}

func (c *Client) RecyclingPoints(ctx context.Context, lat, lon float64, radiusKm int) (string, error) {
	params := url.Values{}
	locationParams(params, lat, lon, radiusKm)
	return c.getJSON(ctx, "recycling_points", c.siteURL("/api/v2/recycling/map/"), params)
}

func petParams(category string, lat, lon float64, radiusKm int) url.Values {
	params := url.Values{}
	params.Set("type", category)
	locationParams(params, lat, lon, radiusKm)
	return params
}

func locationParams(params url.Values, lat, lon float64, radiusKm int) {
	if lat == 0 && lon == 0 {
		return
	}
	if radiusKm <= 0 {
		radiusKm = 10
	}
	params.Set("location_latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("location_longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("location_radius", strconv.Itoa(radiusKm))
}
