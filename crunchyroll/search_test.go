package crunchyroll

import (
	"context"
	"net/http"
	"testing"
)

func TestCrunchyroll_Search(t *testing.T) {
	api := newFakeAPI(t)
	var query map[string][]string
	api.routes["/content/v2/discover/search"] = func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		serveJSON(`{"data":[
			{"type":"series","count":1,"items":[{"id":"GY8VEQ95Y","type":"series","title":"DARLING in the FRANXX"}]},
			{"type":"episode","count":1,"items":[{"id":"GRDQPM1ZY","title":"Alone and Lonesome"}]}]}`)(w, r)
	}

	cr, err := api.builder().LoginAnonymously(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	results, err := cr.Search(context.Background(), "darling", 5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}

	if query["q"][0] != "darling" || query["n"][0] != "5" {
		t.Errorf("unexpected query: %v", query)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[1].Type != "episode" {
		t.Errorf("missing item type should fall back to the bucket type, got %q", results[1].Type)
	}
}
