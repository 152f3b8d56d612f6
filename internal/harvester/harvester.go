// Package harvester calls the configured source APIs, honoring rate
// limits and retry policy, validating structure, and deduplicating
// records before handing a page back to the Bronze writer.
package harvester

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"hydropipe/internal/model"
	"hydropipe/internal/registry"
	"hydropipe/pkg/apperror"
	"hydropipe/pkg/cache"
	"hydropipe/pkg/ratelimit"
)

// defaultMaxPages is the safety cap against runaway pagination, matching
// the source pipeline's own hard stop.
const defaultMaxPages = 1000

// defaultConcurrency bounds how many endpoints of one asset partition are
// fetched in parallel.
const defaultConcurrency = 4

// HTTPDoer is the subset of *http.Client (or httpclient.Client) the
// harvester depends on.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Harvester fetches pages from source APIs described by the registry.
type Harvester struct {
	client      HTTPDoer
	limiter     ratelimit.Limiter
	maxPages    int
	concurrency int
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithMaxPages overrides the pagination safety cap.
func WithMaxPages(n int) Option {
	return func(h *Harvester) { h.maxPages = n }
}

// WithConcurrency overrides how many endpoints fetch in parallel.
func WithConcurrency(n int) Option {
	return func(h *Harvester) { h.concurrency = n }
}

// New builds a Harvester. limiter may be nil, in which case no rate
// limiting is applied (used in tests).
func New(client HTTPDoer, limiter ratelimit.Limiter, opts ...Option) *Harvester {
	h := &Harvester{
		client:      client,
		limiter:     limiter,
		maxPages:    defaultMaxPages,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Fetch retrieves one endpoint's data for partitionKey, applying
// temporal filtering (which parses partitionKey as a "YYYY-MM-DD" day;
// endpoints without a temporal filter only copy the key onto the page),
// pagination, structural validation, and
// deduplication as declared on the endpoint spec.
func (h *Harvester) Fetch(ctx context.Context, api string, descriptor *registry.EndpointDescriptor, endpointName, partitionKey string) (model.Page, error) {
	spec, ok := descriptor.Lookup(endpointName)
	if !ok {
		return model.Page{}, apperror.New(apperror.CodeConfigError, fmt.Sprintf("unknown endpoint %s/%s", api, endpointName))
	}

	switch spec.Family {
	case registry.FamilyWFSGML:
		return h.fetchGML(ctx, api, descriptor, spec, partitionKey)
	default:
		return h.fetchJSONPaginated(ctx, api, descriptor, spec, partitionKey)
	}
}

// FetchEndpoints fetches multiple endpoints of the same API concurrently,
// bounded by the harvester's configured concurrency, preserving the
// requested order in the returned slice. The first error encountered
// cancels the remaining in-flight fetches.
func (h *Harvester) FetchEndpoints(ctx context.Context, api string, descriptor *registry.EndpointDescriptor, endpointNames []string, partitionKey string) ([]model.Page, error) {
	pages := make([]model.Page, len(endpointNames))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(h.concurrency)

	for i, name := range endpointNames {
		group.Go(func() error {
			page, err := h.Fetch(groupCtx, api, descriptor, name, partitionKey)
			if err != nil {
				return err
			}
			pages[i] = page
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

func (h *Harvester) fetchJSONPaginated(ctx context.Context, api string, descriptor *registry.EndpointDescriptor, spec registry.EndpointSpec, partitionKey string) (model.Page, error) {
	pageSize := spec.PageSize
	if pageSize == 0 {
		pageSize = 200
	}

	baseParams := mergeParams(descriptor.BaseParams, spec.Params)
	if spec.ApplyTemporalFilter {
		start, end, err := temporalWindow(partitionKey, spec)
		if err != nil {
			return model.Page{}, err
		}
		baseParams[spec.TemporalStartParam] = start
		baseParams[spec.TemporalEndParam] = end
	}
	if spec.Dedup != nil {
		baseParams["sort"] = "asc"
	}

	var records []map[string]any
	page := 1

	for page <= h.maxPages {
		params := mergeParams(baseParams, map[string]string{
			"size": strconv.Itoa(pageSize),
			"page": strconv.Itoa(page),
		})

		body, err := h.call(ctx, spec.Name, descriptor.BaseURL+"/"+spec.Path, params)
		if err != nil {
			return model.Page{}, err
		}

		var envelope struct {
			Data  []map[string]any `json:"data"`
			Count int              `json:"count"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return model.Page{}, apperror.Wrap(err, apperror.CodePermanentSource, fmt.Sprintf("decoding %s/%s response", api, spec.Name))
		}

		if len(envelope.Data) == 0 {
			break
		}

		if err := validateSample(envelope.Data[0], spec.RequiredFields, api, spec.Name); err != nil {
			return model.Page{}, err
		}

		records = append(records, envelope.Data...)

		if len(envelope.Data) < pageSize {
			break
		}
		page++
	}

	if spec.Dedup != nil {
		records = deduplicate(records, *spec.Dedup)
	}

	return model.Page{
		API:          api,
		Endpoint:     spec.Path,
		PartitionKey: partitionKey,
		FetchedAt:    time.Now().UTC(),
		Records:      records,
		ContentType:  "application/json",
	}, nil
}

func (h *Harvester) fetchGML(ctx context.Context, api string, descriptor *registry.EndpointDescriptor, spec registry.EndpointSpec, partitionKey string) (model.Page, error) {
	params := mergeParams(descriptor.BaseParams, spec.Params)

	body, err := h.call(ctx, spec.Name, descriptor.BaseURL, params)
	if err != nil {
		return model.Page{}, err
	}

	featureCount, err := countGMLFeatures(body)
	if err != nil {
		return model.Page{}, apperror.Wrap(err, apperror.CodePermanentSource, fmt.Sprintf("decoding %s/%s GML response", api, spec.Name))
	}
	if featureCount == 0 {
		return model.Page{}, apperror.New(apperror.CodeValidation, fmt.Sprintf("%s/%s returned an empty feature collection", api, spec.Name))
	}

	return model.Page{
		API:          api,
		Endpoint:     spec.Path,
		PartitionKey: partitionKey,
		FetchedAt:    time.Now().UTC(),
		Raw:          body,
		ContentType:  "application/gml+xml",
	}, nil
}

// call issues one rate-limited GET request and returns its body. Retries
// and backoff are the HTTP client's responsibility; this only waits on
// the per-endpoint budget once per call, so retries made inside the
// client do not wait on the limiter again.
func (h *Harvester) call(ctx context.Context, endpointName, rawURL string, params map[string]string) ([]byte, error) {
	if h.limiter != nil {
		key := cache.BuildRateLimitKey(endpointName)
		if err := h.limiter.Wait(ctx, key); err != nil {
			return nil, apperror.Wrap(err, apperror.CodeTransientSource, fmt.Sprintf("rate limit wait for %s", endpointName))
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigError, fmt.Sprintf("parsing url %s", rawURL))
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "building request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "hydropipe/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeTransientSource, "reading response body")
	}

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent {
		return body, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, apperror.New(apperror.CodeTransientSource, fmt.Sprintf("%s returned status %d", endpointName, resp.StatusCode))
	}
	return nil, apperror.New(apperror.CodePermanentSource, fmt.Sprintf("%s returned status %d", endpointName, resp.StatusCode))
}

func mergeParams(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// temporalWindow computes [date-lookback, date] in spec.TemporalFormat,
// where date is parsed from partitionKey ("YYYY-MM-DD").
func temporalWindow(partitionKey string, spec registry.EndpointSpec) (start, end string, err error) {
	date, parseErr := time.Parse("2006-01-02", partitionKey)
	if parseErr != nil {
		return "", "", apperror.Wrap(parseErr, apperror.CodeInvalidArgument, fmt.Sprintf("parsing partition key %s", partitionKey))
	}

	lookback := spec.LookbackDays
	format := spec.TemporalFormat
	if format == "" {
		format = "2006-01-02"
	}

	startDate := date.AddDate(0, 0, -lookback)
	return startDate.Format(format), date.Format(format), nil
}

func validateSample(sample map[string]any, required []string, api, endpoint string) error {
	for _, field := range required {
		if _, ok := sample[field]; !ok {
			return apperror.New(apperror.CodeValidation, fmt.Sprintf("missing required field %q in %s/%s data", field, api, endpoint))
		}
	}
	return nil
}
