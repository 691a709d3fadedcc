package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapCreatorsWithAffiliationAndIdentifier(t *testing.T) {
	m := Mapper{DoiInfo: DoiInfo{
		Creators: []Agent{
			{
				Name: "Doe, Jane",
				Affiliation: []affiliation{
					{Name: "University of Somewhere", AffiliationIdentifier: "https://ror.org/000000"},
				},
				NameIdentifiers: []nameIdentifier{{NameIdentifier: "https://orcid.org/0000-0002-1825-0097"}},
			},
		},
	}}
	rd := m.Map("", "a title", "a description")

	creators, ok := rd["creator"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, creators, 1)
	assert.Equal(t, "Doe, Jane", creators[0]["name"])
	assert.Equal(t, "Person", creators[0]["@type"])
	assert.Equal(t, "https://orcid.org/0000-0002-1825-0097", creators[0]["identifier"])

	memberOf, ok := creators[0]["member_of"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Organization", memberOf["@type"])
	assert.Equal(t, "https://ror.org/000000", memberOf["identifier"])
}

func TestMapCreatorWithoutAffiliationOmitsMemberOf(t *testing.T) {
	m := Mapper{DoiInfo: DoiInfo{Creators: []Agent{{Name: "Solo Author"}}}}
	rd := m.Map("", "t", "d")
	creators := rd["creator"].([]map[string]any)
	require.Len(t, creators, 1)
	_, hasMemberOf := creators[0]["member_of"]
	assert.False(t, hasMemberOf)
	_, hasIdentifier := creators[0]["identifier"]
	assert.False(t, hasIdentifier)
}

func TestMapContributorsSplitByRole(t *testing.T) {
	m := Mapper{DoiInfo: DoiInfo{Contributors: []Agent{
		{Name: "Rights Co", ContributorType: "RightsHolder"},
		{Name: "Curator Inc", ContributorType: "DataCurator"},
		{Name: "Plain Contributor"},
	}}}
	rd := m.Map("", "t", "d")

	rightsHolders, ok := rd["rights_holder"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, rightsHolders, 1)
	assert.Equal(t, "Rights Co", rightsHolders[0]["name"])

	curators, ok := rd["curator"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, curators, 1)
	assert.Equal(t, "Curator Inc", curators[0]["name"])

	contributors, ok := rd["contributor"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, contributors, 1)
	assert.Equal(t, "Plain Contributor", contributors[0]["name"])
}

func TestMapDatesSplitsIssuedModifiedAndTemporal(t *testing.T) {
	m := Mapper{DoiInfo: DoiInfo{Dates: []DateEntry{
		{Date: "2020-01-01", DateType: "Issued"},
		{Date: "2021-06-15", DateType: "Updated"},
		{Date: "2019-01-01/2019-12-31", DateType: "Collected"},
	}}}
	rd := m.Map("", "t", "d")
	assert.Equal(t, "2020-01-01", rd["issued"])
	assert.Equal(t, "2021-06-15", rd["modified"])

	temporal, ok := rd["temporal"].([]map[string]string)
	require.True(t, ok)
	require.Len(t, temporal, 1)
	assert.Equal(t, "2019-01-01", temporal[0]["start_date"])
	assert.Equal(t, "2019-12-31", temporal[0]["end_date"])
}

func TestMapGeoLocationPointAsWKT(t *testing.T) {
	m := Mapper{DoiInfo: DoiInfo{GeoLocations: []GeoLocation{
		{GeoLocationPlace: "Helsinki", GeoLocationPoint: &struct {
			PointLongitude float64 `json:"pointLongitude"`
			PointLatitude  float64 `json:"pointLatitude"`
		}{PointLongitude: 24.9, PointLatitude: 60.2}},
	}}}
	rd := m.Map("", "t", "d")
	spatial, ok := rd["spatial"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, spatial, 1)
	assert.Equal(t, "Helsinki", spatial[0]["geographic_name"])
	wkt, ok := spatial[0]["as_wkt"].([]string)
	require.True(t, ok)
	assert.Contains(t, wkt[0], "POINT(24.9 60.2)")
}

func TestMapAlternateIdentifiersAndSizes(t *testing.T) {
	m := Mapper{DoiInfo: DoiInfo{
		AlternateIdentifiers: []AlternateIdentifier{{AlternateIdentifier: "urn:foo", AlternateIdentifierType: "URN"}},
		Sizes:                []string{"1024 bytes", "2048 bytes"},
	}}
	rd := m.Map("10.xxxx/yyyy", "t", "d")
	assert.Equal(t, "10.xxxx/yyyy", rd["preferred_identifier"])

	other, ok := rd["other_identifier"].([]map[string]string)
	require.True(t, ok)
	require.Len(t, other, 1)
	assert.Equal(t, "urn:foo", other[0]["notation"])

	assert.EqualValues(t, 3072, rd["total_remote_resources_byte_size"])
}
