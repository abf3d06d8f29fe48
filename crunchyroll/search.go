package crunchyroll

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// SearchResult is a single catalog hit
type SearchResult struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	Slug  string `json:"slug_title"`
}

type searchResponse struct {
	Data []struct {
		Type  string         `json:"type"`
		Count int            `json:"count"`
		Items []SearchResult `json:"items"`
	} `json:"data"`
}

// SearchTypes are the result types the catalog search is asked for
var SearchTypes = []string{"series", "movie_listing", "episode"}

// Search queries the catalog, returning at most limit results per result type
func (c *Crunchyroll) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	params := url.Values{
		"q":    {query},
		"n":    {strconv.Itoa(limit)},
		"type": {strings.Join(SearchTypes, ",")},
	}

	var response searchResponse
	if err := c.request(ctx, http.MethodGet, c.baseURL+"/content/v2/discover/search", params, &response); err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, bucket := range response.Data {
		for _, item := range bucket.Items {
			if item.Type == "" {
				item.Type = bucket.Type
			}
			results = append(results, item)
		}
	}
	return results, nil
}
