package repository

// Column names shared by every stage table.
const (
	ColTargetID       = "target_id"
	ColStartIndex     = "start_index"
	ColEndIndex       = "end_index"
	ColStartTime      = "start_time"
	ColEndTime        = "end_time"
	ColDepth          = "depth"
	ColDuration       = "duration"
	ColRuleLabel      = "rule_label"
	ColPredictedLabel = "predicted_label"
	ColCatalogStatus  = "external_catalog_status"
	ColCatalogError   = "external_catalog_error"
	ColRA             = "ra"
	ColDec            = "dec"
	ColMagnitude      = "apparent_magnitude"
	ColStellarRadius  = "stellar_radius_solar"
	ColTeff           = "effective_temperature"
	ColIsPeriodic     = "is_periodic"
	ColPeakPower      = "peak_power"
	ColBestPeriod     = "best_period_days"
	ColObjectRadius   = "estimated_object_radius_km"
	ColDipShape       = "dip_shape"
	ColNearEdge       = "near_edge"
	ColScore          = "confidence_score"
	ColDiscoveryLabel = "discovery_label"
	ColTime           = "time"
	ColFlux           = "flux"
)

// DipColumns is the column order of dip tables.
var DipColumns = []string{ //nolint:gochecknoglobals // fixed layout
	ColTargetID, ColStartIndex, ColEndIndex, ColStartTime, ColEndTime, ColDepth, ColDuration,
}

// MetadataColumns are the catalog columns joined onto dip tables.
var MetadataColumns = []string{ //nolint:gochecknoglobals // fixed layout
	ColRA, ColDec, ColMagnitude, ColStellarRadius, ColTeff,
}

// Load schemas per table kind.
var (
	//nolint:gochecknoglobals // fixed schemas
	DipSchema = Schema{
		Keyed:    true,
		Aliases:  []Alias{{"dip_depth", ColDepth}},
		Required: []string{ColDepth, ColDuration},
	}
	//nolint:gochecknoglobals // fixed schemas
	LabeledSchema = Schema{
		Keyed:    true,
		Aliases:  []Alias{{"dip_depth", ColDepth}, {"label", ColRuleLabel}},
		Required: []string{ColDepth, ColDuration, ColRuleLabel},
	}
	//nolint:gochecknoglobals // fixed schemas
	KeyedSchema = Schema{
		Keyed:   true,
		Aliases: []Alias{{"dip_depth", ColDepth}},
	}
	//nolint:gochecknoglobals // fixed schemas
	MetadataSchema = Schema{
		Keyed: true,
		Aliases: []Alias{
			{"Tmag", ColMagnitude},
			{"star_radius_rsun", ColStellarRadius},
			{"rad", ColStellarRadius},
			{"Teff", ColTeff},
		},
	}
	//nolint:gochecknoglobals // fixed schemas
	CandidateSchema = Schema{
		Keyed: true,
		Aliases: []Alias{
			{"dip_depth", ColDepth},
			{"Tmag", ColMagnitude},
			{"periodic", ColIsPeriodic},
		},
	}
	//nolint:gochecknoglobals // fixed schemas
	SeriesSchema = Schema{
		Aliases:  []Alias{{"timestamp", ColTime}, {"normalized_flux", ColFlux}},
		Required: []string{ColTime, ColFlux},
	}
)
