package epavic

import "github.com/airpulse/airpulse/internal/airquality"

// Time series tags recognized by the extractor.
const (
	SeriesHourly = "1HR_AV"
	SeriesDaily  = "24HR_AV"
)

// ParametersResponse is the payload returned by the site parameters endpoint.
type ParametersResponse struct {
	SiteID     string      `json:"siteID"`
	SiteName   string      `json:"siteName"`
	Parameters []Parameter `json:"parameters"`
}

// Parameter is one time series block within a parameters payload.
type Parameter struct {
	Name           string    `json:"name"`
	TimeSeriesName string    `json:"timeSeriesName"`
	Readings       []Reading `json:"readings"`
}

// Reading is a single averaged reading within a time series.
type Reading struct {
	AverageValue float64  `json:"averageValue"`
	HealthAdvice string   `json:"healthAdvice"`
	Until        string   `json:"until"`
	Confidence   *float64 `json:"confidence,omitempty"`
	TotalSample  *int     `json:"totalSample,omitempty"`
}

// API response types for the site search endpoint.

type sitesResponse struct {
	Records []siteRecord `json:"records"`
}

type siteRecord struct {
	SiteID   string       `json:"siteID"`
	SiteName string       `json:"siteName"`
	Geometry siteGeometry `json:"geometry"`
}

type siteGeometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// toSite converts an API site record to the domain Site.
func toSite(r *siteRecord) airquality.Site {
	site := airquality.Site{
		ID:   r.SiteID,
		Name: r.SiteName,
	}
	if len(r.Geometry.Coordinates) == 2 {
		site.Lat = r.Geometry.Coordinates[0]
		site.Lon = r.Geometry.Coordinates[1]
	}
	return site
}
