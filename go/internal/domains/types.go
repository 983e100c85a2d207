package domains

// CreateDomainRequest is the body of POST /schemas/{name}/domains.
type CreateDomainRequest struct {
	DomainID string         `json:"domain_id"`
	Data     map[string]any `json:"data"`
	Tags     [][]string     `json:"tags"`
}
