package route

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/scrap-tracking/internal/models"
)

// OSRMClient resolves routes against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: 2 * time.Second}}
}

// Stats queries OSRM /route between points and derives display text.
func (o *OSRMClient) Stats(from, to models.GeoPosition) (models.RouteStats, error) {
	// OSRM route query: /route/v1/driving/{lng1},{lat1};{lng2},{lat2}?overview=false
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false", o.Endpoint, from.Lng, from.Lat, to.Lng, to.Lat)
	resp, err := o.Client.Get(url)
	if err != nil {
		return models.RouteStats{}, err
	}
	defer resp.Body.Close()
	var out struct {
		Routes []struct {
			Duration float64 `json:"duration"`
			Distance float64 `json:"distance"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.RouteStats{}, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return models.RouteStats{}, fmt.Errorf("osrm no route: %v", out.Code)
	}
	r := out.Routes[0]
	return models.RouteStats{
		DistanceText:    formatDistance(r.Distance),
		DurationText:    formatDuration(r.Duration),
		DurationSeconds: r.Duration,
	}, nil
}
