package crossref

// worksResponse ist die Antwort von GET /works (Suche).
type worksResponse struct {
	Message struct {
		Items []work `json:"items"`
	} `json:"message"`
}

// workResponse ist die Antwort von GET /works/{doi}.
type workResponse struct {
	Message work `json:"message"`
}

// work ist der relevante Ausschnitt eines Crossref-Werks.
type work struct {
	DOI            string   `json:"DOI"`
	Type           string   `json:"type"`
	Title          []string `json:"title"`
	ContainerTitle []string `json:"container-title"`
	Author         []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
	} `json:"author"`
	Issued struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"issued"`
}

// issuedYear liefert das Erscheinungsjahr oder 0.
func (w *work) issuedYear() int {
	if len(w.Issued.DateParts) > 0 && len(w.Issued.DateParts[0]) > 0 {
		return w.Issued.DateParts[0][0]
	}
	return 0
}
