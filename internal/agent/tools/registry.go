package tools

import (
	"time"

	"github.com/cloudwego/eino/components/tool"

	"github.com/gorodbot/server/internal/agent/model"
	"github.com/gorodbot/server/internal/cityapi"
)

// Need names the argument a tool cannot run without.
type Need int

const (
	NeedNone Need = iota
	NeedQuery
	NeedDistrict
	NeedBuilding
	NeedCoords
)

// Satisfies reports whether the argument set covers a need.
func (a Args) Satisfies(n Need) bool {
	switch n {
	case NeedQuery:
		return a.Query != ""
	case NeedDistrict:
		return a.District != ""
	case NeedBuilding:
		return a.BuildingID != 0
	case NeedCoords:
		return a.Lat != 0 || a.Lon != 0
	}
	return true
}

// Entry binds a tool to its argument requirement. Fallback entries run only
// when no regular entry of the category was runnable.
type Entry struct {
	Tool     tool.BaseTool
	Need     Need
	Fallback bool
}

// Registry maps each category to the tools its answers come from.
type Registry struct {
	byCategory map[model.Category][]Entry
}

func NewRegistry(api CityService, geo cityapi.Geocoder, maxCandidates int, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}

	searchAddress := newSearchAddressTool(geo, maxCandidates)
	districtInfo := newDistrictInfoTool(api)
	districtInfoByAddress := newDistrictInfoByAddressTool(api)
	districtsList := newDistrictsListTool(api)

	return &Registry{byCategory: map[model.Category][]Entry{
		model.CategoryAddress: {
			{Tool: searchAddress, Need: NeedQuery},
		},
		model.CategoryDistrict: {
			{Tool: districtInfo, Need: NeedDistrict},
			{Tool: districtInfoByAddress, Need: NeedBuilding},
			{Tool: districtsList, Fallback: true},
		},
		model.CategoryMFC: {
			{Tool: newNearestMFCTool(api), Need: NeedBuilding},
			{Tool: newMFCByDistrictTool(api), Need: NeedDistrict},
			{Tool: newAllMFCTool(api), Fallback: true},
		},
		model.CategoryPolyclinic: {
			{Tool: newPolyclinicsTool(api), Need: NeedBuilding},
		},
		model.CategorySchool: {
			{Tool: newSchoolsByAddressTool(api), Need: NeedBuilding},
			{Tool: newSchoolsInDistrictTool(api), Need: NeedDistrict},
		},
		model.CategoryKindergarten: {
			{Tool: newKindergartensTool(api), Need: NeedDistrict},
		},
		model.CategoryHousing: {
			{Tool: newManagementCompanyTool(api), Need: NeedBuilding},
			{Tool: newDisconnectionsTool(api), Need: NeedBuilding},
		},
		model.CategoryPets: {
			{Tool: newPetParksTool(api), Need: NeedCoords},
			{Tool: newVetClinicsTool(api), Need: NeedCoords},
			{Tool: newPetSheltersTool(api), Need: NeedCoords},
		},
		model.CategoryPensioner: {
			{Tool: newPensionerServicesTool(api), Need: NeedDistrict},
			{Tool: newPensionerHotlinesTool(api), Need: NeedDistrict},
		},
		model.CategoryEvents: {
			{Tool: newCityEventsTool(api, now)},
			{Tool: newSportEventsTool(api)},
		},
		model.CategoryRecreation: {
			{Tool: newSportgroundsTool(api)},
			{Tool: newBeautifulPlacesTool(api)},
			{Tool: newTouristRoutesTool(api)},
		},
		model.CategoryInfrastructure: {
			{Tool: newRoadWorksTool(api)},
			{Tool: newRecyclingPointsTool(api), Need: NeedCoords},
		},
	}}
}

// ForCategory returns the entries for a category, nil for rag/conversation.
func (r *Registry) ForCategory(category model.Category) []Entry {
	return r.byCategory[category]
}

// Runnable filters entries down to what the argument set can feed, applying
// the fallback rule.
func Runnable(entries []Entry, args Args) []Entry {
	regular := make([]Entry, 0, len(entries))
	fallbacks := make([]Entry, 0, 1)
	for _, e := range entries {
		if e.Fallback {
			fallbacks = append(fallbacks, e)
			continue
		}
		if args.Satisfies(e.Need) {
			regular = append(regular, e)
		}
	}
	if len(regular) > 0 {
		return regular
	}
	return fallbacks
}
