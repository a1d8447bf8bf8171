package ror

// searchResponse ist die Top-Level-Struktur von GET /v2/organizations.
type searchResponse struct {
	NumberOfResults int            `json:"number_of_results"`
	Items           []organization `json:"items"`
}

// organization ist der relevante Ausschnitt eines ROR-v2-Records.
// ID ist bereits die volle kanonische URL (https://ror.org/...).
type organization struct {
	ID    string `json:"id"`
	Names []struct {
		Value string   `json:"value"`
		Types []string `json:"types"`
	} `json:"names"`
	Types     []string `json:"types"`
	Locations []struct {
		GeonamesDetails struct {
			CountryName string `json:"country_name"`
		} `json:"geonames_details"`
	} `json:"locations"`
}
