package scicrunch

// hitSource ist der _source-Ausschnitt eines Elastic-Treffers, wie ihn
// sowohl der Such-Index als auch der Resolver liefern.
type hitSource struct {
	Item struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Curie       string `json:"curie"`
	} `json:"item"`
	RRID struct {
		Curie          string `json:"curie"`
		ProperCitation string `json:"properCitation"`
	} `json:"rrid"`
}

// searchResponse/resolverResponse teilen sich das Elastic-Antwortformat.
type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source hitSource `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type resolverResponse = searchResponse
