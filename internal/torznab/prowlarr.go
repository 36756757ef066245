package torznab

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dlbridge/dlbridge/internal/bridgeerr"
	"github.com/dlbridge/dlbridge/internal/model"
)

// prowlarrResult is the subset of Prowlarr's /api/v1/search response this
// bridge consumes to supplement local results with external indexer hits.
type prowlarrResult struct {
	Title     string `json:"title"`
	InfoURL   string `json:"infoUrl"`
	DownloadURL string `json:"downloadUrl"`
	Size      int64  `json:"size"`
	InfoHash  string `json:"infoHash"`
	PublishDate string `json:"publishDate"`
}

// ProwlarrPassthrough implements SearchSource by delegating to a running
// Prowlarr instance, used when the operator wants to fold external indexer
// results into the same Torznab surface this bridge exposes.
type ProwlarrPassthrough struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewProwlarrPassthrough builds a passthrough client.
func NewProwlarrPassthrough(baseURL, apiKey string) *ProwlarrPassthrough {
	return &ProwlarrPassthrough{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Search queries Prowlarr and adapts its results into unified Items.
func (p *ProwlarrPassthrough) Search(query string) ([]*model.Item, error) {
	u := fmt.Sprintf("%s/api/v1/search?query=%s", p.baseURL, url.QueryEscape(query))
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, bridgeerr.New(bridgeerr.KindBadRequest, "torznab.Prowlarr.Search", err)
	}
	req.Header.Set("X-Api-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, bridgeerr.New(bridgeerr.KindTransport, "torznab.Prowlarr.Search", err)
	}
	defer resp.Body.Close()

	var results []prowlarrResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindProtocol, "torznab.Prowlarr.Search", err)
	}

	out := make([]*model.Item, 0, len(results))
	for _, r := range results {
		out = append(out, &model.Item{
			Hash: r.InfoHash,
			Name: r.Title,
			Size: r.Size,
		})
	}
	return out, nil
}
