package harvester

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydropipe/internal/registry"
)

func newPiezoDescriptor(baseURL string) *registry.EndpointDescriptor {
	descriptors := registry.Hubeau()
	d := descriptors["piezo"]
	d.BaseURL = baseURL
	return d
}

// stubDoer round-trips requests to an in-process httptest server, letting
// tests exercise the harvester's pagination and retry-triggering logic
// without a real HTTP client or network access.
type stubDoer struct {
	server *httptest.Server
}

func (s *stubDoer) Do(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = strings.TrimPrefix(s.server.URL, "http://")
	return http.DefaultClient.Do(req)
}

func TestFetch_PiezoChroniquesPaginatesUntilShortPage(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		page := r.URL.Query().Get("page")
		require.NotEmpty(t, page)

		var data []map[string]any
		if n < 3 {
			for i := 0; i < 2; i++ {
				data = append(data, map[string]any{
					"code_bss": "BSS001", "date_mesure": "2026-07-30T00:00:00Z", "niveau_nappe_eau": 12.3,
				})
			}
		} else {
			data = append(data, map[string]any{
				"code_bss": "BSS001", "date_mesure": "2026-07-30T00:00:00Z", "niveau_nappe_eau": 12.3,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "count": len(data)})
	}))
	defer server.Close()

	descriptor := newPiezoDescriptor(server.URL)
	descriptor.Endpoints["chroniques"] = func() registry.EndpointSpec {
		spec := descriptor.Endpoints["chroniques"]
		spec.PageSize = 2
		return spec
	}()

	h := New(&stubDoer{server: server}, nil)
	page, err := h.Fetch(context.Background(), "piezo", descriptor, "chroniques", "2026-07-30")

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	// 5 raw records for BSS001 on the same day collapse to 1 after dedup.
	assert.Len(t, page.Records, 1)
}

func TestFetch_ValidationFailsOnMissingRequiredField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"niveau_nappe_eau": 12.3}},
		})
	}))
	defer server.Close()

	descriptor := newPiezoDescriptor(server.URL)
	h := New(&stubDoer{server: server}, nil)

	_, err := h.Fetch(context.Background(), "piezo", descriptor, "stations", "2026-07-30")
	require.Error(t, err)
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"code_bss": "BSS001"}},
		})
	}))
	defer server.Close()

	descriptor := newPiezoDescriptor(server.URL)

	retrying := &retryingDoer{inner: &stubDoer{server: server}, maxAttempts: 3}
	h := New(retrying, nil)

	page, err := h.Fetch(context.Background(), "piezo", descriptor, "stations", "2026-07-30")

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, page.Records, 1)
}

// retryingDoer mimics the outer retry client's behavior of re-issuing a
// request on a transient status without pulling in the real retryablehttp
// stack, keeping this test about the harvester's call contract, not the
// HTTP client's own retry loop.
type retryingDoer struct {
	inner       HTTPDoer
	maxAttempts int
}

func (r *retryingDoer) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		resp, err = r.inner.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		resp.Body.Close()
	}
	return resp, nil
}

func TestFetchEndpoints_RunsConcurrentlyAndPreservesOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"code_bss": "BSS001", "date_mesure": "2026-07-30T00:00:00Z"}},
		})
	}))
	defer server.Close()

	descriptor := newPiezoDescriptor(server.URL)
	h := New(&stubDoer{server: server}, nil, WithConcurrency(2))

	pages, err := h.FetchEndpoints(context.Background(), "piezo", descriptor, []string{"stations", "chroniques"}, "2026-07-30")

	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "stations", pages[0].Endpoint)
	assert.Equal(t, "chroniques", pages[1].Endpoint)
}

func TestDeduplicate_TruncatesToDay(t *testing.T) {
	rule := registry.DedupRule{DateField: "date_mesure", GroupKeys: []string{"code_bss"}, TruncateToDay: true}
	records := []map[string]any{
		{"code_bss": "A", "date_mesure": "2026-07-30T01:00:00Z", "value": 1},
		{"code_bss": "A", "date_mesure": "2026-07-30T23:00:00Z", "value": 2},
		{"code_bss": "B", "date_mesure": "2026-07-30T12:00:00Z", "value": 3},
	}

	out := deduplicate(records, rule)

	assert.Len(t, out, 2)
}

func TestDeduplicate_PreservesSubDailyGranularityWhenDisabled(t *testing.T) {
	rule := registry.DedupRule{DateField: "date_debut_prelevement", GroupKeys: []string{"code_ouvrage"}, TruncateToDay: false}
	records := []map[string]any{
		{"code_ouvrage": "A", "date_debut_prelevement": "2026-07-30T01:00:00Z", "value": 1},
		{"code_ouvrage": "A", "date_debut_prelevement": "2026-07-30T23:00:00Z", "value": 2},
	}

	out := deduplicate(records, rule)

	assert.Len(t, out, 2)
}

func TestCountGMLFeatures(t *testing.T) {
	doc := `<?xml version="1.0"?>
<FeatureCollection xmlns="http://www.opengis.net/wfs/2.0">
  <featureMember><cell id="1"/></featureMember>
  <featureMember><cell id="2"/></featureMember>
</FeatureCollection>`

	n, err := countGMLFeatures([]byte(doc))

	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFetch_GMLEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/gml+xml")
		fmt.Fprint(w, `<FeatureCollection><featureMember><cell/></featureMember></FeatureCollection>`)
	}))
	defer server.Close()

	descriptors := registry.Meteo()
	descriptor := descriptors["meteo"]
	descriptor.BaseURL = server.URL

	h := New(&stubDoer{server: server}, nil)
	page, err := h.Fetch(context.Background(), "meteo", descriptor, "grid", "2026-07-30")

	require.NoError(t, err)
	assert.NotEmpty(t, page.Raw)
	assert.Equal(t, "application/gml+xml", page.ContentType)
}
