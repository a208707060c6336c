package types

type ConsentView struct {
	Groups      map[string][]string `json:"groups"`
	Consent     map[string]bool     `json:"consent"`
	CatalogHash string              `json:"catalog_hash,omitempty"`
}

// AccessLogEntry records one feature read during one decision request.
type AccessLogEntry struct {
	Timestamp     string `json:"timestamp"`
	RequestID     string `json:"request_id"`
	Feature       string `json:"feature"`
	Group         string `json:"group,omitempty"`
	Allowed       bool   `json:"allowed"`
	DeniedBy      string `json:"denied_by,omitempty"`
	ScorerVersion string `json:"scorer_version"`
}
