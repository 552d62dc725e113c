package catalog

// TelescopeCount is one row of the per-instrument breakdown.
type TelescopeCount struct {
	Telescope string `json:"telescope"`
	Count     int    `json:"count"`
}

// Stats summarises the catalog contents.
type Stats struct {
	Total        int              `json:"total"`
	WithRedshift int              `json:"with_redshift"`
	MinRedshift  *float64         `json:"min_redshift,omitempty"`
	MaxRedshift  *float64         `json:"max_redshift,omitempty"`
	ByTelescope  []TelescopeCount `json:"by_telescope"`
}
