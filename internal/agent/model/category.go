package model

import "fmt"

// Category is the classified intent bucket for a user query. It decides
// which tool subset the executor may use and which slots must be filled
// before any tool runs.
type Category string

const (
	// Geo / address
	CategoryAddress  Category = "address"
	CategoryDistrict Category = "district"

	// City services
	CategoryMFC          Category = "mfc"
	CategoryPolyclinic   Category = "polyclinic"
	CategorySchool       Category = "school"
	CategoryKindergarten Category = "kindergarten"
	CategoryHousing      Category = "housing"

	// Pets
	CategoryPets Category = "pets"

	// Activities
	CategoryPensioner  Category = "pensioner"
	CategoryEvents     Category = "events"
	CategoryRecreation Category = "recreation"

	// Infrastructure
	CategoryInfrastructure Category = "infrastructure"

	// Non-API categories (answered without city tools)
	CategoryRAG          Category = "rag"
	CategoryConversation Category = "conversation"
)

// AllCategories is the closed set of valid categories. Order is stable and
// used when rendering the classifier prompt.
var AllCategories = []Category{
	CategoryAddress,
	CategoryDistrict,
	CategoryMFC,
	CategoryPolyclinic,
	CategorySchool,
	CategoryKindergarten,
	CategoryHousing,
	CategoryPets,
	CategoryPensioner,
	CategoryEvents,
	CategoryRecreation,
	CategoryInfrastructure,
	CategoryRAG,
	CategoryConversation,
}

// Slot names that can be required by a category.
const (
	SlotAddress  = "address"
	SlotDistrict = "district"
)

// requiredSlots maps every category to the slots that must be present before
// tool execution. Non-API categories have an empty set by definition.
// Completeness over AllCategories is enforced in init and by tests, so an
// unhandled category cannot ship.
var requiredSlots = map[Category][]string{
	CategoryAddress:        {},
	CategoryDistrict:       {},
	CategoryMFC:            {SlotAddress},
	CategoryPolyclinic:     {SlotAddress},
	CategorySchool:         {SlotAddress},
	CategoryKindergarten:   {SlotDistrict},
	CategoryHousing:        {SlotAddress},
	CategoryPets:           {SlotAddress},
	CategoryPensioner:      {SlotDistrict},
	CategoryEvents:         {},
	CategoryRecreation:     {},
	CategoryInfrastructure: {},
	CategoryRAG:            {},
	CategoryConversation:   {},
}

func init() {
	for _, c := range AllCategories {
		if _, ok := requiredSlots[c]; !ok {
			panic(fmt.Sprintf("model: category %q missing from required-slot table", c))
		}
	}
	if len(requiredSlots) != len(AllCategories) {
		panic("model: required-slot table contains unknown categories")
	}
}

// ParseCategory validates a raw classifier value against the closed set.
func ParseCategory(v string) (Category, bool) {
	c := Category(v)
	_, ok := requiredSlots[c]
	return c, ok
}

// RequiredSlots returns the slots that must be filled for the category.
func RequiredSlots(c Category) []string {
	return requiredSlots[c]
}

// IsAPICategory reports whether the category routes through slot checking
// and tool execution rather than the knowledge base or small talk.
func (c Category) IsAPICategory() bool {
	return c != CategoryRAG && c != CategoryConversation
}

// NeedsSlots reports whether the category has a non-empty required-slot set.
func (c Category) NeedsSlots() bool {
	return len(requiredSlots[c]) > 0
}

func (c Category) String() string {
	return string(c)
}
