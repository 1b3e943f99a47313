package stacapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	gostac "github.com/planetlabs/go-stac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/planet-overlap/internal/catalog"
	"github.com/robert-malhotra/planet-overlap/internal/filter"
	"github.com/robert-malhotra/planet-overlap/internal/partition"
)

func testPredicate(t *testing.T) *filter.Predicate {
	t.Helper()
	dates, err := partition.ParseDateRange("2023-01-01", "2023-01-10")
	require.NoError(t, err)
	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	p := partition.Partition{Tile: partition.Tile{Bound: b, Geometry: orb.MultiPolygon{b.ToPolygon()}}, Dates: dates}
	pred, err := filter.Build(filter.QualityFilter{MaxCloudCover: 0.5}, p, []string{"PSScene"})
	require.NoError(t, err)
	return pred
}

func itemJSON(id string, cloudPercent float64) string {
	return fmt.Sprintf(`{
		"type": "Feature",
		"stac_version": "1.0.0",
		"id": %q,
		"collection": "PSScene",
		"geometry": {"type": "Polygon", "coordinates": [[[0.1,0.1],[0.4,0.1],[0.4,0.4],[0.1,0.4],[0.1,0.1]]]},
		"bbox": [0.1, 0.1, 0.4, 0.4],
		"properties": {
			"datetime": "2023-01-05T10:11:12Z",
			"eo:cloud_cover": %v,
			"view:sun_elevation": 38.0,
			"view:off_nadir": 2.5,
			"platform": "2403",
			"instruments": ["PSB.SD"],
			"pl:quality_category": "standard",
			"pl:ground_control": true
		},
		"links": [],
		"assets": {}
	}`, id, cloudPercent)
}

func TestClient_SearchAndFetchNext(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/geo+json")

		if strings.Contains(string(body), `"token":"page2"`) {
			fmt.Fprintf(w, `{"type":"FeatureCollection","features":[%s],"links":[]}`, itemJSON("b", 20))
			return
		}

		var req map[string]any
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "cql2-json", req["filter-lang"])
		assert.Equal(t, float64(25), req["limit"])
		assert.Equal(t, []any{"PSScene"}, req["collections"])
		assert.Contains(t, string(body), `"s_intersects"`)

		fmt.Fprintf(w, `{"type":"FeatureCollection","features":[%s],"links":[
			{"rel":"self","href":"%s/search"},
			{"rel":"next","href":"%s/search","method":"POST","body":{"token":"page2"}}
		]}`, itemJSON("a", 10), server.URL, server.URL)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 25, 5*time.Second)
	ctx := context.Background()

	page, err := client.Search(ctx, testPredicate(t))
	require.NoError(t, err)
	require.Len(t, page.Scenes, 1)
	require.NotEmpty(t, page.Next)

	s := page.Scenes[0]
	assert.Equal(t, "a", s.ID)
	assert.Equal(t, "PSScene", s.ItemType)
	assert.InDelta(t, 0.10, s.CloudCover, 1e-9)
	assert.Equal(t, 38.0, s.SunElevation)
	assert.Equal(t, 2.5, s.ViewAngle)
	assert.Equal(t, "2403", s.SatelliteID)
	assert.Equal(t, "PSB.SD", s.Instrument)
	assert.True(t, s.GroundControl)
	assert.Equal(t, time.Date(2023, 1, 5, 10, 11, 12, 0, time.UTC), s.Acquired)

	page, err = client.FetchNext(ctx, page.Next)
	require.NoError(t, err)
	require.Len(t, page.Scenes, 1)
	assert.Equal(t, "b", page.Scenes[0].ID)
	assert.Empty(t, page.Next)
}

func TestClient_SkipsInvalidItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		missingCloud := strings.Replace(itemJSON("no-cloud", 0), `"eo:cloud_cover": 0,`, "", 1)
		fmt.Fprintf(w, `{"type":"FeatureCollection","features":[%s,%s,%s],"links":[]}`,
			itemJSON("ok", 5), itemJSON("percent-too-high", 250), missingCloud)
	}))
	defer server.Close()

	page, err := NewClient(server.URL, "", 0, time.Second).Search(context.Background(), testPredicate(t))
	require.NoError(t, err)
	assert.Len(t, page.Scenes, 1)
	assert.Equal(t, 2, page.Skipped)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		want   catalog.Kind
	}{
		{http.StatusTooManyRequests, catalog.KindTransient},
		{http.StatusBadGateway, catalog.KindTransient},
		{http.StatusBadRequest, catalog.KindPermanent},
		{http.StatusUnauthorized, catalog.KindFatal},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := NewClient(server.URL, "key", 10, time.Second).Search(context.Background(), testPredicate(t))
			require.Error(t, err)
			kind, ok := catalog.KindOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestClient_FetchNextRejectsForeignHost(t *testing.T) {
	client := NewClient("http://catalog.example.com", "", 10, time.Second)
	cursor := EncodeCursor(&Link{Href: "http://elsewhere.example.com/search", Rel: "next"})

	_, err := client.FetchNext(context.Background(), cursor)
	require.Error(t, err)
	kind, _ := catalog.KindOf(err)
	assert.Equal(t, catalog.KindPermanent, kind)
}

func TestCursorRoundTrip(t *testing.T) {
	link := &Link{Href: "http://x/search", Rel: "next", Method: "POST", Body: json.RawMessage(`{"token":"t"}`)}
	got, err := DecodeCursor(EncodeCursor(link))
	require.NoError(t, err)
	assert.Equal(t, link.Href, got.Href)
	assert.Equal(t, "POST", got.Method)
	assert.JSONEq(t, `{"token":"t"}`, string(got.Body))

	_, err = DecodeCursor("not base64!")
	assert.Error(t, err)
}

func TestItemToScene_Fallbacks(t *testing.T) {
	item := &gostac.Item{
		Id:         "x",
		Collection: "SkySatScene",
		Geometry: map[string]any{
			"type":        "Polygon",
			"coordinates": [][][]float64{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		},
		Properties: map[string]any{
			"datetime":      "2023-02-01T00:00:00Z",
			"cloud_cover":   0.25,
			"sun_elevation": 10.0,
		},
	}

	s, err := ItemToScene(item)
	require.NoError(t, err)
	assert.Equal(t, "SkySatScene", s.ItemType)
	assert.Equal(t, 0.25, s.CloudCover)
	assert.Equal(t, 10.0, s.SunElevation)
}
