package profile

import (
	"errors"
	"fmt"
	"strings"
)

// PlaceResolver matches free-text birth places against a built-in gazetteer.
// The table covers the cities the assistant sees in practice; anything else
// is reported as unknown so the collection step can re-prompt.
type PlaceResolver struct {
	index map[string][]Place
}

// ErrUnknownPlace is returned when a query matches no gazetteer entry
var ErrUnknownPlace = errors.New("unknown place")

var gazetteer = []Place{
	{Name: "Pune", Region: "Maharashtra", Country: "India",
		Latitude: 18.52, Longitude: 73.86, Timezone: "Asia/Kolkata"},
	{Name: "Mumbai", Region: "Maharashtra", Country: "India",
		Latitude: 19.08, Longitude: 72.88, Timezone: "Asia/Kolkata"},
	{Name: "Delhi", Region: "Delhi", Country: "India",
		Latitude: 28.61, Longitude: 77.21, Timezone: "Asia/Kolkata"},
	{Name: "Bengaluru", Region: "Karnataka", Country: "India",
		Latitude: 12.97, Longitude: 77.59, Timezone: "Asia/Kolkata"},
	{Name: "Chennai", Region: "Tamil Nadu", Country: "India",
		Latitude: 13.08, Longitude: 80.27, Timezone: "Asia/Kolkata"},
	{Name: "Kolkata", Region: "West Bengal", Country: "India",
		Latitude: 22.57, Longitude: 88.36, Timezone: "Asia/Kolkata"},
	{Name: "Jaipur", Region: "Rajasthan", Country: "India",
		Latitude: 26.91, Longitude: 75.79, Timezone: "Asia/Kolkata"},
	{Name: "Hyderabad", Region: "Telangana", Country: "India",
		Latitude: 17.39, Longitude: 78.49, Timezone: "Asia/Kolkata"},
	{Name: "Hyderabad", Region: "Sindh", Country: "Pakistan",
		Latitude: 25.39, Longitude: 68.37, Timezone: "Asia/Karachi"},
	{Name: "London", Region: "England", Country: "United Kingdom",
		Latitude: 51.51, Longitude: -0.13, Timezone: "Europe/London"},
	{Name: "London", Region: "Ontario", Country: "Canada",
		Latitude: 42.98, Longitude: -81.25, Timezone: "America/Toronto"},
	{Name: "New York", Region: "New York", Country: "United States",
		Latitude: 40.71, Longitude: -74.01, Timezone: "America/New_York"},
	{Name: "San Francisco", Region: "California", Country: "United States",
		Latitude: 37.77, Longitude: -122.42,
		Timezone: "America/Los_Angeles"},
	{Name: "Chicago", Region: "Illinois", Country: "United States",
		Latitude: 41.88, Longitude: -87.63, Timezone: "America/Chicago"},
	{Name: "Springfield", Region: "Illinois", Country: "United States",
		Latitude: 39.80, Longitude: -89.64, Timezone: "America/Chicago"},
	{Name: "Springfield", Region: "Massachusetts",
		Country:  "United States",
		Latitude: 42.10, Longitude: -72.59, Timezone: "America/New_York"},
	{Name: "Singapore", Country: "Singapore",
		Latitude: 1.35, Longitude: 103.82, Timezone: "Asia/Singapore"},
	{Name: "Dubai", Country: "United Arab Emirates",
		Latitude: 25.20, Longitude: 55.27, Timezone: "Asia/Dubai"},
	{Name: "Sydney", Region: "New South Wales", Country: "Australia",
		Latitude: -33.87, Longitude: 151.21, Timezone: "Australia/Sydney"},
	{Name: "Tokyo", Country: "Japan",
		Latitude: 35.68, Longitude: 139.65, Timezone: "Asia/Tokyo"},
	{Name: "Berlin", Country: "Germany",
		Latitude: 52.52, Longitude: 13.41, Timezone: "Europe/Berlin"},
	{Name: "Paris", Country: "France",
		Latitude: 48.86, Longitude: 2.35, Timezone: "Europe/Paris"},
}

// NewPlaceResolver creates a resolver over the built-in gazetteer
func NewPlaceResolver() *PlaceResolver {
	index := map[string][]Place{}
	for _, p := range gazetteer {
		key := normalizePlace(p.Name)
		index[key] = append(index[key], p)
	}
	return &PlaceResolver{index: index}
}

// Resolve matches a free-text place query. One result is a definitive
// match; several mean the query is ambiguous and the candidates come back
// for the user to choose between. Qualifiers after commas ("Hyderabad,
// India") narrow candidates by region or country; a full Label round-trips
// back to its single entry.
func (r *PlaceResolver) Resolve(query string) ([]Place, error) {
	name, qualifiers := splitQuery(query)
	if name == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlace, query)
	}

	candidates, ok := r.index[normalizePlace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlace, query)
	}
	if len(qualifiers) == 0 {
		return candidates, nil
	}

	var matched []Place
	for _, p := range candidates {
		if matchesQualifiers(p, qualifiers) {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlace, query)
	}
	return matched, nil
}

func matchesQualifiers(p Place, qualifiers []string) bool {
	for _, q := range qualifiers {
		if !strings.EqualFold(p.Region, q) &&
			!strings.EqualFold(p.Country, q) {
			return false
		}
	}
	return true
}

func splitQuery(query string) (string, []string) {
	parts := strings.Split(query, ",")
	var qualifiers []string
	for _, part := range parts[1:] {
		if q := strings.TrimSpace(part); q != "" {
			qualifiers = append(qualifiers, q)
		}
	}
	return strings.TrimSpace(parts[0]), qualifiers
}

func normalizePlace(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
