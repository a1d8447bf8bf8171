package services

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"pid-hub/models"
)

// Schemaspezifische Strukturvalidierung. Die Patterns prüfen den nackten
// Identifier (ohne CURIE-Präfix und ohne URL-Anteil).
var (
	orcidPattern    = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}-\d{3}[0-9X]$`)
	rorPattern      = regexp.MustCompile(`^0[a-z0-9]{8}$`) // 9 Zeichen base32, beginnt mit 0
	rridPattern     = regexp.MustCompile(`^RRID:(SCR_\d{6,9}|AB_\d{6,9}|CVCL_[A-Z0-9]{4,6})$`)
	rridBarePattern = regexp.MustCompile(`^(SCR_\d{6,9}|AB_\d{6,9}|CVCL_[A-Z0-9]{4,6})$`)
	doiPattern      = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)
	cstrPattern     = regexp.MustCompile(`^\d{5}\.\d{2}\.\S+$`)
	handlePattern   = regexp.MustCompile(`^\d+(\.\d+)*/\S+$`)
)

// Kanonische URL-Templates je Schema.
const (
	orcidURLPrefix  = "https://orcid.org/"
	rorURLPrefix    = "https://ror.org/"
	rridURLPrefix   = "https://scicrunch.org/resolver/"
	cstrURLPrefix   = "https://www.cstr.cn/detail?identifier="
	doiURLPrefix    = "https://doi.org/"
	handleURLPrefix = "https://hdl.handle.net/"
)

// Normalize wandelt einen rohen Identifier (nackter Code, CURIE oder URL)
// in einen NormalizedIdentifier mit kanonischer, auflösbarer URL um.
// Rein und deterministisch, keine Netzwerkaufrufe. Ist expectedScheme leer,
// wird das Schema aus Präfix, Pattern oder URL-Host abgeleitet.
//
// Normalize ist idempotent: Normalize auf die kanonische URL eines
// Ergebnisses liefert wieder dasselbe Ergebnis (bis auf RawValue).
func Normalize(raw string, expected models.Scheme) (models.NormalizedIdentifier, error) {
	var zero models.NormalizedIdentifier

	value := strings.TrimSpace(raw)
	if value == "" {
		return zero, models.InvalidIdentifierError{Scheme: expected, Reason: "empty value"}
	}
	if expected != "" && !expected.Valid() {
		return zero, models.InvalidIdentifierError{Reason: fmt.Sprintf("unknown scheme %q", expected)}
	}

	var scheme models.Scheme
	var bare string

	lower := strings.ToLower(value)
	switch {
	case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
		var err error
		scheme, bare, err = splitIdentifierURL(value, expected)
		if err != nil {
			return zero, err
		}
	default:
		scheme, bare = splitCURIE(value)
		if scheme == "" {
			if expected != "" {
				scheme = expected
			} else {
				scheme = detectScheme(value)
				if scheme == "" {
					return zero, models.InvalidIdentifierError{Reason: fmt.Sprintf("%q matches no known identifier scheme", value)}
				}
			}
			bare = value
		}
	}

	if expected != "" && scheme != expected {
		return zero, models.InvalidIdentifierError{
			Scheme: expected,
			Reason: fmt.Sprintf("value is a %s identifier, expected %s", scheme, expected),
		}
	}

	return buildIdentifier(scheme, value, bare)
}

// splitCURIE erkennt bekannte CURIE-Präfixe (RRID:, doi:, hdl:, CSTR:).
// Ohne Präfix bleibt das Schema leer.
func splitCURIE(value string) (models.Scheme, string) {
	lower := strings.ToLower(value)
	switch {
	case strings.HasPrefix(lower, "rrid:"):
		return models.SchemeRRID, value[len("rrid:"):]
	case strings.HasPrefix(lower, "doi:"):
		return models.SchemeDOI, value[len("doi:"):]
	case strings.HasPrefix(lower, "hdl:"):
		return models.SchemeHandle, value[len("hdl:"):]
	case strings.HasPrefix(lower, "cstr:"):
		return models.SchemeCSTR, value[len("cstr:"):]
	}
	return "", ""
}

// detectScheme ordnet einen nackten Wert per Pattern einem Schema zu.
// DOI vor Handle: jede DOI ist syntaktisch auch ein Handle.
func detectScheme(value string) models.Scheme {
	switch {
	case orcidPattern.MatchString(strings.ToUpper(value)):
		return models.SchemeORCID
	case rorPattern.MatchString(strings.ToLower(value)):
		return models.SchemeROR
	case rridBarePattern.MatchString(value):
		return models.SchemeRRID
	case doiPattern.MatchString(strings.ToLower(value)):
		return models.SchemeDOI
	case cstrPattern.MatchString(value):
		return models.SchemeCSTR
	case handlePattern.MatchString(value):
		return models.SchemeHandle
	}
	return ""
}

// splitIdentifierURL leitet das Schema aus dem Host einer vollen URL ab und
// extrahiert den nackten Identifier.
func splitIdentifierURL(value string, expected models.Scheme) (models.Scheme, string, error) {
	u, err := url.Parse(value)
	if err != nil {
		return "", "", models.InvalidIdentifierError{Scheme: expected, Reason: "unparseable URL"}
	}

	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	path := strings.Trim(u.Path, "/")

	switch host {
	case "orcid.org":
		return models.SchemeORCID, path, nil
	case "ror.org":
		return models.SchemeROR, path, nil
	case "doi.org", "dx.doi.org":
		return models.SchemeDOI, path, nil
	case "scicrunch.org":
		if !strings.HasPrefix(path, "resolver/") {
			return "", "", models.InvalidIdentifierError{Scheme: models.SchemeRRID, Reason: "scicrunch URL without /resolver/ path"}
		}
		// Die Resolver-API hängt ".json" an, die Display-Form nicht.
		return models.SchemeRRID, strings.TrimSuffix(strings.TrimPrefix(path, "resolver/"), ".json"), nil
	case "cstr.cn":
		id := u.Query().Get("identifier")
		if id == "" {
			return "", "", models.InvalidIdentifierError{Scheme: models.SchemeCSTR, Reason: "cstr URL without identifier parameter"}
		}
		return models.SchemeCSTR, id, nil
	case "hdl.handle.net":
		return models.SchemeHandle, strings.TrimPrefix(path, "api/handles/"), nil
	}
	return "", "", models.InvalidIdentifierError{Scheme: expected, Reason: fmt.Sprintf("unrecognized identifier host %q", host)}
}

// buildIdentifier validiert den nackten Wert gegen das Schema und baut die
// kanonische URL aus dem jeweiligen Template.
func buildIdentifier(scheme models.Scheme, raw, bare string) (models.NormalizedIdentifier, error) {
	var zero models.NormalizedIdentifier

	var canonical string
	switch scheme {
	case models.SchemeORCID:
		bare = strings.ToUpper(bare)
		if !orcidPattern.MatchString(bare) {
			return zero, models.InvalidIdentifierError{Scheme: scheme, Reason: fmt.Sprintf("%q is not a valid ORCID iD", bare)}
		}
		canonical = orcidURLPrefix + bare
	case models.SchemeROR:
		bare = strings.ToLower(bare)
		if !rorPattern.MatchString(bare) {
			return zero, models.InvalidIdentifierError{Scheme: scheme, Reason: fmt.Sprintf("%q is not a valid ROR id", bare)}
		}
		canonical = rorURLPrefix + bare
	case models.SchemeRRID:
		curie := bare
		if !strings.HasPrefix(strings.ToUpper(curie), "RRID:") {
			curie = "RRID:" + curie
		} else {
			curie = "RRID:" + curie[len("RRID:"):]
		}
		if !rridPattern.MatchString(curie) {
			return zero, models.InvalidIdentifierError{Scheme: scheme, Reason: fmt.Sprintf("%q fails RRID validation", bare)}
		}
		canonical = rridURLPrefix + curie
	case models.SchemeCSTR:
		if !cstrPattern.MatchString(bare) {
			return zero, models.InvalidIdentifierError{Scheme: scheme, Reason: fmt.Sprintf("%q is not a valid CSTR code", bare)}
		}
		canonical = cstrURLPrefix + bare
	case models.SchemeDOI:
		bare = strings.ToLower(bare)
		if !doiPattern.MatchString(bare) {
			return zero, models.InvalidIdentifierError{Scheme: scheme, Reason: fmt.Sprintf("%q is not a valid DOI", bare)}
		}
		canonical = doiURLPrefix + bare
	case models.SchemeHandle:
		if !handlePattern.MatchString(bare) {
			return zero, models.InvalidIdentifierError{Scheme: scheme, Reason: fmt.Sprintf("%q is not a valid handle", bare)}
		}
		canonical = handleURLPrefix + bare
	default:
		return zero, models.InvalidIdentifierError{Reason: fmt.Sprintf("unknown scheme %q", scheme)}
	}

	return models.NormalizedIdentifier{Scheme: scheme, RawValue: raw, CanonicalURL: canonical}, nil
}
