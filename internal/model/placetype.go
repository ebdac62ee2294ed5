package model

// PlaceType is the backend's category value for a place.
type PlaceType string

const (
	Accommodation PlaceType = "住宿"
	Medical       PlaceType = "醫療"
	Restroom      PlaceType = "廁所"
	Shower        PlaceType = "洗澡"
	Water         PlaceType = "加水"
	Supplies      PlaceType = "物資"
	Repair        PlaceType = "維修"
	Fuel          PlaceType = "加油"
	MentalHealth  PlaceType = "心理援助"
	Shelter       PlaceType = "避難"
)

var placeTypes = []PlaceType{
	Accommodation, Medical, Restroom, Shower, Water,
	Supplies, Repair, Fuel, MentalHealth, Shelter,
}

var placeTypeInfo = map[PlaceType]struct{ slug, label string }{
	Accommodation: {"accommodation", "住宿點"},
	Medical:       {"medical", "醫療站"},
	Restroom:      {"restroom", "廁所"},
	Shower:        {"shower", "洗澡點"},
	Water:         {"water", "加水站"},
	Supplies:      {"supplies", "物資站"},
	Repair:        {"repair", "維修站"},
	Fuel:          {"fuel", "加油站"},
	MentalHealth:  {"mental-health", "心理資源"},
	Shelter:       {"shelter", "避難處"},
}

// AllPlaceTypes returns every known type in display order.
func AllPlaceTypes() []PlaceType {
	out := make([]PlaceType, len(placeTypes))
	copy(out, placeTypes)
	return out
}

// Known reports whether t is one of the closed set of types.
func (t PlaceType) Known() bool {
	_, ok := placeTypeInfo[t]
	return ok
}

// Label is the display name shown on tabs and in detail views.
func (t PlaceType) Label() string {
	if info, ok := placeTypeInfo[t]; ok {
		return info.label
	}
	return string(t)
}

// Slug is an ASCII identifier, used for metric labels and URLs.
func (t PlaceType) Slug() string {
	if info, ok := placeTypeInfo[t]; ok {
		return info.slug
	}
	return "unknown"
}

// ParsePlaceType accepts either the wire value or the slug.
func ParsePlaceType(s string) (PlaceType, bool) {
	if t := PlaceType(s); t.Known() {
		return t, true
	}
	for t, info := range placeTypeInfo {
		if info.slug == s {
			return t, true
		}
	}
	return "", false
}

// Tab is the active list/map filter: TabAll or a PlaceType wire value.
type Tab string

const TabAll Tab = "all"

// ParseTab maps "", "all", a wire value or a slug to a Tab.
func ParseTab(s string) (Tab, bool) {
	if s == "" || s == string(TabAll) {
		return TabAll, true
	}
	t, ok := ParsePlaceType(s)
	if !ok {
		return "", false
	}
	return TabFor(t), true
}

// TabFor returns the tab showing only t.
func TabFor(t PlaceType) Tab { return Tab(t) }

// Type returns the filter type, or "" for TabAll.
func (t Tab) Type() PlaceType {
	if t == TabAll || t == "" {
		return ""
	}
	return PlaceType(t)
}

// Includes reports whether places of type pt are visible under the tab.
func (t Tab) Includes(pt PlaceType) bool {
	return t == TabAll || t == "" || PlaceType(t) == pt
}

// Label returns the tab title.
func (t Tab) Label() string {
	if t == TabAll || t == "" {
		return "全部"
	}
	return PlaceType(t).Label()
}
