package clients

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNoResults is returned when iNaturalist knows nothing about a taxon
var ErrNoResults = errors.New("No information was returned")

// Taxon is an iNaturalist taxon record, kept as returned so it can be stored
// verbatim in species meta data
type Taxon map[string]any

// ID returns the taxon id
func (t Taxon) ID() int64 {
	id, _ := t["id"].(float64)
	return int64(id)
}

// WikipediaURL returns the linked Wikipedia article, if any
func (t Taxon) WikipediaURL() string {
	s, _ := t["wikipedia_url"].(string)
	return s
}

// CommonName returns the preferred English common name
func (t Taxon) CommonName() string {
	s, _ := t["preferred_common_name"].(string)
	return s
}

// Family returns the name of the family among the taxon's ancestors
func (t Taxon) Family() string {
	ancestors, _ := t["ancestors"].([]any)
	family := ""
	for _, a := range ancestors {
		ancestor, ok := a.(map[string]any)
		if !ok {
			continue
		}
		if rank, _ := ancestor["rank"].(string); rank == "family" {
			family, _ = ancestor["name"].(string)
		}
	}
	return family
}

// Photos returns the licensed taxon photos
func (t Taxon) Photos() []map[string]any {
	list, _ := t["taxon_photos"].([]any)
	photos := make([]map[string]any, 0, len(list))
	for _, item := range list {
		detail, ok := item.(map[string]any)
		if !ok {
			continue
		}
		photo, ok := detail["photo"].(map[string]any)
		if !ok {
			continue
		}
		if license, _ := photo["license_code"].(string); license == "" {
			continue
		}
		photos = append(photos, photo)
	}
	return photos
}

// TaxonURL returns the public iNaturalist page of a taxon
func TaxonURL(id int64) string {
	return fmt.Sprintf("https://www.inaturalist.org/taxa/%d", id)
}

// INaturalist is a client for the iNaturalist taxa API
type INaturalist struct {
	base
}

// NewINaturalist creates a client for the API at baseURL
func NewINaturalist(baseURL string, opts ...Option) *INaturalist {
	return &INaturalist{base: newBase(strings.TrimRight(baseURL, "/"), opts)}
}

type taxaResponse struct {
	Results []Taxon `json:"results"`
}

func (c *INaturalist) first(ctx context.Context, u string) (Taxon, error) {
	var resp taxaResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, ErrNoResults
	}
	return resp.Results[0], nil
}

// Search returns the best matching taxon for a scientific name
func (c *INaturalist) Search(ctx context.Context, name string) (Taxon, error) {
	q := url.Values{"q": {name}, "limit": {"1"}}
	return c.first(ctx, c.baseURL+"/taxa?"+q.Encode())
}

// Taxon returns the full record of a taxon
func (c *INaturalist) Taxon(ctx context.Context, id int64) (Taxon, error) {
	return c.first(ctx, fmt.Sprintf("%s/taxa/%d", c.baseURL, id))
}
