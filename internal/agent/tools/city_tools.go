package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/gorodbot/server/internal/agent/model"
	"github.com/gorodbot/server/internal/cityapi"
)

// CityService is the slice of the gateway client the tools depend on.
// *cityapi.Client satisfies it; tests substitute a fake.
type CityService interface {
	Districts(ctx context.Context) (string, error)
	DistrictInfoByName(ctx context.Context, district string) (string, error)
	DistrictInfoByBuilding(ctx context.Context, buildingID int64) (string, error)
	NearestMFC(ctx context.Context, buildingID int64) (string, error)
	MFCByDistrict(ctx context.Context, district string) (string, error)
	AllMFC(ctx context.Context) (string, error)
	PolyclinicsByBuilding(ctx context.Context, buildingID int64) (string, error)
	LinkedSchools(ctx context.Context, buildingID int64) (string, error)
	SchoolsMap(ctx context.Context, district string) (string, error)
	Kindergartens(ctx context.Context, district string, count int) (string, error)
	ManagementCompany(ctx context.Context, buildingID int64) (string, error)
	Disconnections(ctx context.Context, buildingID int64) (string, error)
	VetClinics(ctx context.Context, lat, lon float64, radiusKm int) (string, error)
	PetParks(ctx context.Context, lat, lon float64, radiusKm int) (string, error)
	PetShelters(ctx context.Context, lat, lon float64, radiusKm int) (string, error)
	PensionerServices(ctx context.Context, district string, count int) (string, error)
	PensionerHotlines(ctx context.Context, district string) (string, error)
	CityEvents(ctx context.Context, startDate, endDate string, count int) (string, error)
	SportEvents(ctx context.Context, district string, count int) (string, error)
	Sportgrounds(ctx context.Context, district string, count int) (string, error)
	BeautifulPlaces(ctx context.Context, district string, count int) (string, error)
	TouristRoutes(ctx context.Context, count int) (string, error)
	RoadWorks(ctx context.Context, district string, count int) (string, error)
	RecyclingPoints(ctx context.Context, lat, lon float64, radiusKm int) (string, error)
}

// Args is the slot-derived argument set the executor passes to every tool
// of a category. Each tool input struct picks the fields it needs.
type Args struct {
	Query      string  `json:"query,omitempty"`
	District   string  `json:"district,omitempty"`
	BuildingID int64   `json:"building_id,omitempty"`
	Lat        float64 `json:"lat,omitempty"`
	Lon        float64 `json:"lon,omitempty"`
}

type textOutput struct {
	Result string `json:"result"`
}

type queryInput struct {
	Query string `json:"query"`
}

type districtInput struct {
	District string `json:"district"`
}

type buildingInput struct {
	BuildingID int64 `json:"building_id"`
}

type coordsInput struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type emptyInput struct{}

func textTool[I any](name, desc string, params map[string]*schema.ParameterInfo, run func(ctx context.Context, in *I) (string, error)) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name:        name,
			Desc:        desc,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		},
		func(ctx context.Context, in *I) (*textOutput, error) {
			out, err := run(ctx, in)
			if err != nil {
				return nil, err
			}
			return &textOutput{Result: out}, nil
		},
	)
}

var districtParam = map[string]*schema.ParameterInfo{
	"district": {Type: "string", Desc: "Название района Санкт-Петербурга, например Калининский", Required: true},
}

var buildingParam = map[string]*schema.ParameterInfo{
	"building_id": {Type: "number", Desc: "Идентификатор здания из геокодера", Required: true},
}

var coordsParams = map[string]*schema.ParameterInfo{
	"lat": {Type: "number", Desc: "Широта", Required: true},
	"lon": {Type: "number", Desc: "Долгота", Required: true},
}

func newSearchAddressTool(geo cityapi.Geocoder, maxCandidates int) tool.BaseTool {
	return textTool("search_address",
		"Найти здание по адресу и вернуть варианты с координатами",
		map[string]*schema.ParameterInfo{
			"query": {Type: "string", Desc: "Адрес: улица и номер дома", Required: true},
		},
		func(ctx context.Context, in *queryInput) (string, error) {
			if strings.TrimSpace(in.Query) == "" {
				return "", fmt.Errorf("query is required")
			}
			candidates, err := geo.ResolveAddress(ctx, in.Query, maxCandidates)
			if err != nil {
				return "", err
			}
			return formatCandidates(candidates), nil
		})
}

func formatCandidates(candidates []model.AddressCandidate) string {
	if len(candidates) == 0 {
		return "Адрес не найден."
	}
	var b strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s (id=%d, %.6f, %.6f)\n", i+1, c.FullAddress, c.BuildingID, c.Lat, c.Lon)
	}
	return strings.TrimRight(b.String(), "\n")
}

func newDistrictsListTool(api CityService) tool.BaseTool {
	return textTool("get_districts_list", "Список всех районов Санкт-Петербурга", nil,
		func(ctx context.Context, _ *emptyInput) (string, error) {
			return api.Districts(ctx)
		})
}

func newDistrictInfoTool(api CityService) tool.BaseTool {
	return textTool("get_district_info", "Справка о районе по названию", districtParam,
		func(ctx context.Context, in *districtInput) (string, error) {
			return api.DistrictInfoByName(ctx, in.District)
		})
}

func newDistrictInfoByAddressTool(api CityService) tool.BaseTool {
	return textTool("get_district_info_by_address", "Справка о районе по зданию", buildingParam,
		func(ctx context.Context, in *buildingInput) (string, error) {
			return api.DistrictInfoByBuilding(ctx, in.BuildingID)
		})
}

func newNearestMFCTool(api CityService) tool.BaseTool {
	return textTool("find_nearest_mfc", "Ближайший МФЦ к зданию", buildingParam,
		func(ctx context.Context, in *buildingInput) (string, error) {
			return api.NearestMFC(ctx, in.BuildingID)
		})
}

func newMFCByDistrictTool(api CityService) tool.BaseTool {
	return textTool("get_mfc_by_district", "Все МФЦ района", districtParam,
		func(ctx context.Context, in *districtInput) (string, error) {
			return api.MFCByDistrict(ctx, in.District)
		})
}

func newAllMFCTool(api CityService) tool.BaseTool {
	return textTool("get_all_mfc", "Список всех МФЦ города", nil,
		func(ctx context.Context, _ *emptyInput) (string, error) {
			return api.AllMFC(ctx)
		})
}

func newPolyclinicsTool(api CityService) tool.BaseTool {
	return textTool("get_polyclinics_by_address", "Прикреплённые поликлиники по зданию", buildingParam,
		func(ctx context.Context, in *buildingInput) (string, error) {
			return api.PolyclinicsByBuilding(ctx, in.BuildingID)
		})
}

func newSchoolsByAddressTool(api CityService) tool.BaseTool {
	return textTool("get_schools_by_address", "Прикреплённые школы по зданию", buildingParam,
		func(ctx context.Context, in *buildingInput) (string, error) {
			return api.LinkedSchools(ctx, in.BuildingID)
		})
}

func newSchoolsInDistrictTool(api CityService) tool.BaseTool {
	return textTool("get_schools_in_district", "Школы района", districtParam,
		func(ctx context.Context, in *districtInput) (string, error) {
			return api.SchoolsMap(ctx, in.District)
		})
}

func newKindergartensTool(api CityService) tool.BaseTool {
	return textTool("get_kindergartens_by_district", "Государственные детские сады района", districtParam,
		func(ctx context.Context, in *districtInput) (string, error) {
			return api.Kindergartens(ctx, in.District, 10)
		})
}

func newManagementCompanyTool(api CityService) tool.BaseTool {
	return textTool("get_management_company", "Управляющая компания здания", buildingParam,
		func(ctx context.Context, in *buildingInput) (string, error) {
			return api.ManagementCompany(ctx, in.BuildingID)
		})
}

func newDisconnectionsTool(api CityService) tool.BaseTool {
	return textTool("get_disconnections", "Отключения воды и электричества по зданию", buildingParam,
		func(ctx context.Context, in *buildingInput) (string, error) {
			return api.Disconnections(ctx, in.BuildingID)
		})
}

func newVetClinicsTool(api CityService) tool.BaseTool {
	return textTool("get_vet_clinics", "Ветеринарные клиники рядом с координатами", coordsParams,
		func(ctx context.Context, in *coordsInput) (string, error) {
			return api.VetClinics(ctx, in.Lat, in.Lon, 5)
		})
}

func newPetParksTool(api CityService) tool.BaseTool {
	return textTool("get_pet_parks", "Площадки для выгула собак рядом с координатами", coordsParams,
		func(ctx context.Context, in *coordsInput) (string, error) {
			return api.PetParks(ctx, in.Lat, in.Lon, 5)
		})
}

func newPetSheltersTool(api CityService) tool.BaseTool {
	return textTool("get_pet_shelters", "Приюты для животных рядом с координатами", coordsParams,
		func(ctx context.Context, in *coordsInput) (string, error) {
			return api.PetShelters(ctx, in.Lat, in.Lon, 10)
		})
}

func newPensionerServicesTool(api CityService) tool.BaseTool {
	return textTool("get_pensioner_services", "Услуги и кружки для пенсионеров в районе", districtParam,
		func(ctx context.Context, in *districtInput) (string, error) {
			return api.PensionerServices(ctx, in.District, 10)
		})
}

func newPensionerHotlinesTool(api CityService) tool.BaseTool {
	return textTool("get_pensioner_hotlines", "Горячие линии для пенсионеров района", districtParam,
		func(ctx context.Context, in *districtInput) (string, error) {
			return api.PensionerHotlines(ctx, in.District)
		})
}

func newCityEventsTool(api CityService, now func() time.Time) tool.BaseTool {
	return textTool("get_city_events", "Городская афиша на ближайшую неделю", nil,
		func(ctx context.Context, _ *emptyInput) (string, error) {
			start := now()
			end := start.AddDate(0, 0, 7)
			return api.CityEvents(ctx, start.Format("2006-01-02"), end.Format("2006-01-02"), 10)
		})
}

func newSportEventsTool(api CityService) tool.BaseTool {
	return textTool("get_sport_events", "Спортивные мероприятия, можно по району",
		map[string]*schema.ParameterInfo{
			"district": {Type: "string", Desc: "Район, необязательно"},
		},
		func(ctx context.Context, in *districtInput) (string, error) {
			return api.SportEvents(ctx, in.District, 10)
		})
}

func newSportgroundsTool(api CityService) tool.BaseTool {
	return textTool("get_sportgrounds", "Спортивные площадки, можно по району",
		map[string]*schema.ParameterInfo{
			"district": {Type: "string", Desc: "Район, необязательно"},
		},
		func(ctx context.Context, in *districtInput) (string, error) {
			return api.Sportgrounds(ctx, in.District, 10)
		})
}

func newBeautifulPlacesTool(api CityService) tool.BaseTool {
	return textTool("get_beautiful_places", "Красивые и интересные места, можно по району",
		map[string]*schema.ParameterInfo{
			"district": {Type: "string", Desc: "Район, необязательно"},
		},
		func(ctx context.Context, in *districtInput) (string, error) {
			return api.BeautifulPlaces(ctx, in.District, 10)
		})
}

func newTouristRoutesTool(api CityService) tool.BaseTool {
	return textTool("get_tourist_routes", "Туристические маршруты по городу", nil,
		func(ctx context.Context, _ *emptyInput) (string, error) {
			return api.TouristRoutes(ctx, 5)
		})
}

func newRoadWorksTool(api CityService) tool.BaseTool {
	return textTool("get_road_works", "Дорожные работы, можно по району",
		map[string]*schema.ParameterInfo{
			"district": {Type: "string", Desc: "Район, необязательно"},
		},
		func(ctx context.Context, in *districtInput) (string, error) {
			return api.RoadWorks(ctx, in.District, 10)
		})
}

func newRecyclingPointsTool(api CityService) tool.BaseTool {
	return textTool("get_recycling_points", "Пункты приёма вторсырья рядом с координатами", coordsParams,
		func(ctx context.Context, in *coordsInput) (string, error) {
			return api.RecyclingPoints(ctx, in.Lat, in.Lon, 5)
		})
}
