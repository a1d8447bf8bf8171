package orcid

// searchResponse ist die Antwort der Expanded-Search.
type searchResponse struct {
	ExpandedResult []expandedResult `json:"expanded-result"`
}

// expandedResult ist ein einzelner Treffer der Expanded-Search.
type expandedResult struct {
	OrcidID         string   `json:"orcid-id"`
	GivenNames      string   `json:"given-names"`
	FamilyNames     string   `json:"family-names"`
	InstitutionName []string `json:"institution-name"`
}

// personalDetails ist der relevante Ausschnitt von /{orcid}/personal-details.
type personalDetails struct {
	Name struct {
		GivenNames struct {
			Value string `json:"value"`
		} `json:"given-names"`
		FamilyName struct {
			Value string `json:"value"`
		} `json:"family-name"`
		CreditName struct {
			Value string `json:"value"`
		} `json:"credit-name"`
	} `json:"name"`
}
