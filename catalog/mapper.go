// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package catalog maps a submission's DOI-info document plus per-object
// fields into the catalog (discovery) service's research-dataset shape
// (spec.md §4.I). Grounded on helpers/metax_mapper.py's
// MetaDataMapper.map_metadata/_map_creators dispatch-table pattern,
// extended to cover the contributor/date/geoLocation/alternateIdentifier
// mappings the original left unimplemented.
package catalog

import (
	"fmt"
	"strings"
)

// nameIdentifier mirrors datacite's nameIdentifiers[] entries.
type nameIdentifier struct {
	NameIdentifier       string `json:"nameIdentifier"`
	NameIdentifierScheme string `json:"nameIdentifierScheme,omitempty"`
}

// affiliation mirrors datacite's creators[].affiliation[]/contributors[].affiliation[] entries.
type affiliation struct {
	Name                  string `json:"name"`
	AffiliationIdentifier string `json:"affiliationIdentifier,omitempty"`
}

// Agent mirrors a datacite creators[]/contributors[] entry.
type Agent struct {
	Name            string           `json:"name"`
	NameType        string           `json:"nameType,omitempty"`
	ContributorType string           `json:"contributorType,omitempty"`
	Affiliation     []affiliation    `json:"affiliation,omitempty"`
	NameIdentifiers []nameIdentifier `json:"nameIdentifiers,omitempty"`
}

// DateEntry mirrors a datacite dates[] entry.
type DateEntry struct {
	Date     string `json:"date"`
	DateType string `json:"dateType"`
}

// GeoLocation mirrors a datacite geoLocations[] entry; only the point
// and box shapes are mapped (polygon support is not offered upstream).
type GeoLocation struct {
	GeoLocationPlace string `json:"geoLocationPlace,omitempty"`
	GeoLocationPoint *struct {
		PointLongitude float64 `json:"pointLongitude"`
		PointLatitude  float64 `json:"pointLatitude"`
	} `json:"geoLocationPoint,omitempty"`
	GeoLocationBox *struct {
		WestBoundLongitude float64 `json:"westBoundLongitude"`
		EastBoundLongitude float64 `json:"eastBoundLongitude"`
		SouthBoundLatitude float64 `json:"southBoundLatitude"`
		NorthBoundLatitude float64 `json:"northBoundLatitude"`
	} `json:"geoLocationBox,omitempty"`
}

// AlternateIdentifier mirrors a datacite alternateIdentifiers[] entry.
type AlternateIdentifier struct {
	AlternateIdentifier     string `json:"alternateIdentifier"`
	AlternateIdentifierType string `json:"alternateIdentifierType"`
}

// DoiInfo is the subset of a submission's doiInfo sub-document the
// mapper reads. Fields absent from the submitted document are left at
// their zero value and simply produce no corresponding research-dataset
// entry.
type DoiInfo struct {
	Creators             []Agent               `json:"creators,omitempty"`
	Contributors         []Agent               `json:"contributors,omitempty"`
	Keywords             string                `json:"keywords,omitempty"`
	Subjects             []string              `json:"subjects,omitempty"`
	Dates                []DateEntry           `json:"dates,omitempty"`
	GeoLocations         []GeoLocation         `json:"geoLocations,omitempty"`
	Language             string                `json:"language,omitempty"`
	AlternateIdentifiers []AlternateIdentifier `json:"alternateIdentifiers,omitempty"`
	Sizes                []string              `json:"sizes,omitempty"`
}

// contributorTypeRole buckets a DataCite contributorType into the
// research-dataset field it belongs in: RightsHolder goes to
// rights_holder, DataCurator goes to curator, everything else is a
// plain contributor.
func contributorTypeRole(contributorType string) string {
	switch contributorType {
	case "RightsHolder":
		return "rights_holder"
	case "DataCurator":
		return "curator"
	default:
		return "contributor"
	}
}

// Mapper builds a catalog research-dataset document from a submission's
// doiInfo plus the identifiers minted for it (the DOI/preferred
// identifier and per-object accession, when mapping a single object).
type Mapper struct {
	DoiInfo DoiInfo
}

// Map runs the full dispatch over DoiInfo's fields, returning the
// research-dataset map ready to embed in a CatalogClient call.
// preferredIdentifier is the submission/object's minted DOI (empty
// until one has been created, e.g. for the initial draft).
func (m Mapper) Map(preferredIdentifier, title, description string) map[string]any {
	rd := map[string]any{
		"title":       map[string]string{"en": title},
		"description": map[string]string{"en": description},
	}
	if preferredIdentifier != "" {
		rd["preferred_identifier"] = preferredIdentifier
	}

	d := m.DoiInfo
	if len(d.Creators) > 0 {
		rd["creator"] = mapAgents(d.Creators)
	}
	if d.Keywords != "" {
		rd["keyword"] = map[string][]string{"en": strings.Split(d.Keywords, ",")}
	}
	if len(d.Subjects) > 0 {
		rd["theme"] = mapConcepts(d.Subjects)
	}
	if d.Language != "" {
		rd["language"] = []map[string]string{{"en": d.Language}}
	}
	if len(d.AlternateIdentifiers) > 0 {
		rd["other_identifier"] = mapAlternateIdentifiers(d.AlternateIdentifiers)
	}
	if len(d.Sizes) > 0 {
		rd["total_remote_resources_byte_size"] = sumSizes(d.Sizes)
	}

	mapContributors(rd, d.Contributors)
	mapDates(rd, d.Dates)
	if spatial := mapGeoLocations(d.GeoLocations); len(spatial) > 0 {
		rd["spatial"] = spatial
	}

	return rd
}

// mapAgents implements _map_creators's Person/member_of-Organization
// shape, generalized to any Agent list (used for both creator[] and the
// contributor buckets).
func mapAgents(agents []Agent) []map[string]any {
	out := make([]map[string]any, 0, len(agents))
	for _, a := range agents {
		agent := map[string]any{
			"name":  a.Name,
			"@type": "Person",
		}
		if len(a.Affiliation) > 0 {
			// Metax's schema accepts only one affiliation per agent.
			aff := a.Affiliation[0]
			memberOf := map[string]any{
				"@type": "Organization",
				"name":  map[string]string{"en": aff.Name},
			}
			if aff.AffiliationIdentifier != "" {
				memberOf["identifier"] = aff.AffiliationIdentifier
			}
			agent["member_of"] = memberOf
		}
		// Metax's schema accepts only one identifier per agent.
		if len(a.NameIdentifiers) > 0 && a.NameIdentifiers[0].NameIdentifier != "" {
			agent["identifier"] = a.NameIdentifiers[0].NameIdentifier
		}
		out = append(out, agent)
	}
	return out
}

// mapContributors splits contributors by their DataCite contributorType
// into rights_holder/curator/contributor, per spec.md §4.I.
func mapContributors(rd map[string]any, contributors []Agent) {
	buckets := map[string][]Agent{}
	for _, c := range contributors {
		role := contributorTypeRole(c.ContributorType)
		buckets[role] = append(buckets[role], c)
	}
	for role, agents := range buckets {
		rd[role] = mapAgents(agents)
	}
}

// mapDates splits DataCite dates[] into the research-dataset's
// issued/modified singular fields and a temporal[] range list built
// from Collected entries, per spec.md §4.I.
func mapDates(rd map[string]any, dates []DateEntry) {
	var temporal []map[string]string
	for _, d := range dates {
		switch d.DateType {
		case "Issued":
			rd["issued"] = d.Date
		case "Updated":
			rd["modified"] = d.Date
		case "Collected":
			start, end := splitDateRange(d.Date)
			entry := map[string]string{"start_date": start}
			if end != "" {
				entry["end_date"] = end
			}
			temporal = append(temporal, entry)
		}
	}
	if len(temporal) > 0 {
		rd["temporal"] = temporal
	}
}

// splitDateRange splits a DataCite date range ("2020-01-01/2020-06-30")
// into its start and end; a single date has no end.
func splitDateRange(date string) (start, end string) {
	parts := strings.SplitN(date, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

// mapGeoLocations renders point and box geoLocations as WKT strings in
// spatial[], per spec.md §4.I ("geoLocations→WKT in spatial[]").
// Polygon geoLocations are not offered upstream and are skipped.
func mapGeoLocations(locations []GeoLocation) []map[string]any {
	var spatial []map[string]any
	for _, loc := range locations {
		entry := map[string]any{}
		if loc.GeoLocationPlace != "" {
			entry["geographic_name"] = loc.GeoLocationPlace
		}
		switch {
		case loc.GeoLocationPoint != nil:
			p := loc.GeoLocationPoint
			entry["as_wkt"] = []string{fmt.Sprintf("POINT(%g %g)", p.PointLongitude, p.PointLatitude)}
		case loc.GeoLocationBox != nil:
			b := loc.GeoLocationBox
			entry["as_wkt"] = []string{fmt.Sprintf(
				"POLYGON((%g %g, %g %g, %g %g, %g %g, %g %g))",
				b.WestBoundLongitude, b.SouthBoundLatitude,
				b.EastBoundLongitude, b.SouthBoundLatitude,
				b.EastBoundLongitude, b.NorthBoundLatitude,
				b.WestBoundLongitude, b.NorthBoundLatitude,
				b.WestBoundLongitude, b.SouthBoundLatitude,
			)}
		default:
			if entry["geographic_name"] == nil {
				continue
			}
		}
		spatial = append(spatial, entry)
	}
	return spatial
}

// mapAlternateIdentifiers builds other_identifier[] StructuredIdentifier
// entries from datacite alternateIdentifiers[].
func mapAlternateIdentifiers(ids []AlternateIdentifier) []map[string]string {
	out := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, map[string]string{
			"notation":   id.AlternateIdentifier,
			"type":       id.AlternateIdentifierType,
		})
	}
	return out
}

// mapConcepts wraps a list of free-text subjects as research-dataset
// Concept references (theme/field_of_science shape).
func mapConcepts(subjects []string) []map[string]any {
	out := make([]map[string]any, 0, len(subjects))
	for _, s := range subjects {
		out = append(out, map[string]any{"pref_label": map[string]string{"en": s}})
	}
	return out
}

// sumSizes parses datacite sizes[] entries ("123 bytes", "1024") and
// sums the leading integer from each, per
// map_metadata's `total_remote_resources_byte_size = int(value)`,
// generalized to a list instead of a single scalar.
func sumSizes(sizes []string) int64 {
	var total int64
	for _, s := range sizes {
		fields := strings.Fields(s)
		if len(fields) == 0 {
			continue
		}
		var n int64
		if _, err := fmt.Sscanf(fields[0], "%d", &n); err == nil {
			total += n
		}
	}
	return total
}
