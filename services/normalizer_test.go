package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pid-hub/models"
)

func TestNormalizeAcceptsAllInputForms(t *testing.T) {
	cases := []struct {
		name      string
		input     string
		expected  models.Scheme
		scheme    models.Scheme
		canonical string
	}{
		{
			name:      "orcid bare",
			input:     "0000-0002-1825-0097",
			scheme:    models.SchemeORCID,
			canonical: "https://orcid.org/0000-0002-1825-0097",
		},
		{
			name:      "orcid url",
			input:     "https://orcid.org/0000-0002-1825-0097",
			scheme:    models.SchemeORCID,
			canonical: "https://orcid.org/0000-0002-1825-0097",
		},
		{
			name:      "orcid lowercase checksum x",
			input:     "0000-0002-9079-593x",
			scheme:    models.SchemeORCID,
			canonical: "https://orcid.org/0000-0002-9079-593X",
		},
		{
			name:      "ror bare",
			input:     "0456r8d26",
			scheme:    models.SchemeROR,
			canonical: "https://ror.org/0456r8d26",
		},
		{
			name:      "ror url",
			input:     "https://ror.org/0456r8d26",
			scheme:    models.SchemeROR,
			canonical: "https://ror.org/0456r8d26",
		},
		{
			name:      "rrid curie",
			input:     "RRID:SCR_012345",
			scheme:    models.SchemeRRID,
			canonical: "https://scicrunch.org/resolver/RRID:SCR_012345",
		},
		{
			name:      "rrid curie lowercase prefix",
			input:     "rrid:AB_123456",
			scheme:    models.SchemeRRID,
			canonical: "https://scicrunch.org/resolver/RRID:AB_123456",
		},
		{
			name:      "rrid bare with expected scheme",
			input:     "SCR_012345",
			expected:  models.SchemeRRID,
			scheme:    models.SchemeRRID,
			canonical: "https://scicrunch.org/resolver/RRID:SCR_012345",
		},
		{
			name:      "rrid resolver url with json suffix",
			input:     "https://scicrunch.org/resolver/RRID:SCR_012345.json",
			scheme:    models.SchemeRRID,
			canonical: "https://scicrunch.org/resolver/RRID:SCR_012345",
		},
		{
			name:      "doi curie",
			input:     "doi:10.1038/nphys1170",
			scheme:    models.SchemeDOI,
			canonical: "https://doi.org/10.1038/nphys1170",
		},
		{
			name:      "doi url",
			input:     "https://doi.org/10.1038/NPHYS1170",
			scheme:    models.SchemeDOI,
			canonical: "https://doi.org/10.1038/nphys1170",
		},
		{
			name:      "doi legacy dx host",
			input:     "http://dx.doi.org/10.1038/nphys1170",
			scheme:    models.SchemeDOI,
			canonical: "https://doi.org/10.1038/nphys1170",
		},
		{
			name:      "cstr curie",
			input:     "CSTR:31253.11.sciencedb.j00001.00123",
			scheme:    models.SchemeCSTR,
			canonical: "https://www.cstr.cn/detail?identifier=31253.11.sciencedb.j00001.00123",
		},
		{
			name:      "cstr url",
			input:     "https://www.cstr.cn/detail?identifier=31253.11.sciencedb.j00001.00123",
			scheme:    models.SchemeCSTR,
			canonical: "https://www.cstr.cn/detail?identifier=31253.11.sciencedb.j00001.00123",
		},
		{
			name:      "handle curie",
			input:     "hdl:20.500.12345/678",
			scheme:    models.SchemeHandle,
			canonical: "https://hdl.handle.net/20.500.12345/678",
		},
		{
			name:      "handle url",
			input:     "https://hdl.handle.net/20.500.12345/678",
			scheme:    models.SchemeHandle,
			canonical: "https://hdl.handle.net/20.500.12345/678",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ident, err := Normalize(tc.input, tc.expected)
			require.NoError(t, err)
			assert.Equal(t, tc.scheme, ident.Scheme)
			assert.Equal(t, tc.canonical, ident.CanonicalURL)
			assert.Equal(t, tc.input, ident.RawValue)
		})
	}
}

// Die kanonische URL eines Ergebnisses muss wieder auf dasselbe Ergebnis
// normalisieren.
func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"0000-0002-1825-0097",
		"0456r8d26",
		"RRID:SCR_012345",
		"doi:10.1038/nphys1170",
		"CSTR:31253.11.sciencedb.j00001.00123",
		"hdl:20.500.12345/678",
	}

	for _, input := range inputs {
		first, err := Normalize(input, "")
		require.NoError(t, err, input)

		second, err := Normalize(first.CanonicalURL, "")
		require.NoError(t, err, first.CanonicalURL)

		assert.Equal(t, first.Scheme, second.Scheme)
		assert.Equal(t, first.CanonicalURL, second.CanonicalURL)
	}
}

// Jede DOI ist syntaktisch auch ein Handle; ohne erwartetes Schema muss die
// Erkennung DOI bevorzugen.
func TestNormalizePrefersDOIOverHandle(t *testing.T) {
	ident, err := Normalize("10.1038/nphys1170", "")
	require.NoError(t, err)
	assert.Equal(t, models.SchemeDOI, ident.Scheme)

	// Als Handle deklariert bleibt derselbe Wert ein Handle.
	ident, err = Normalize("10.1038/nphys1170", models.SchemeHandle)
	require.NoError(t, err)
	assert.Equal(t, models.SchemeHandle, ident.Scheme)
	assert.Equal(t, "https://hdl.handle.net/10.1038/nphys1170", ident.CanonicalURL)
}

func TestNormalizeRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected models.Scheme
	}{
		{name: "empty", input: ""},
		{name: "whitespace only", input: "   "},
		{name: "no known scheme", input: "not-an-id"},
		{name: "orcid bad checksum structure", input: "0000-0002-1825-00", expected: models.SchemeORCID},
		{name: "ror wrong length", input: "0456r8d2", expected: models.SchemeROR},
		{name: "ror must start with zero", input: "1456r8d26", expected: models.SchemeROR},
		{name: "rrid unknown prefix", input: "RRID:XYZ_123456"},
		{name: "doi missing suffix", input: "10.1038/", expected: models.SchemeDOI},
		{name: "scheme mismatch", input: "0000-0002-1825-0097", expected: models.SchemeROR},
		{name: "unknown host", input: "https://example.com/0000-0002-1825-0097"},
		{name: "scicrunch url without resolver path", input: "https://scicrunch.org/about"},
		{name: "cstr url without identifier param", input: "https://www.cstr.cn/detail"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.input, tc.expected)
			require.Error(t, err)
			var invalidErr models.InvalidIdentifierError
			assert.ErrorAs(t, err, &invalidErr)
		})
	}
}

func TestNormalizeRejectsUnknownExpectedScheme(t *testing.T) {
	_, err := Normalize("0000-0002-1825-0097", models.Scheme("isbn"))
	var invalidErr models.InvalidIdentifierError
	require.ErrorAs(t, err, &invalidErr)
}
