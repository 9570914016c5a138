// Package tmdb implements the MetadataClient boundary against a TMDb-style
// catalog API. Lookups resolve by source id when present, otherwise by title
// search; a year-narrowed search that comes back empty is retried once
// without the year, since release years in user queries are often off by one.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/frameiq/queryflow/core"
	"github.com/frameiq/queryflow/tool"
)

const (
	defaultBaseURL   = "https://api.themoviedb.org/3"
	defaultImageBase = "https://image.tmdb.org/t/p/w500"
	defaultLinkBase  = "https://www.themoviedb.org"
)

// Options configure the catalog client.
type Options struct {
	// BaseURL overrides the API endpoint, for tests.
	BaseURL string
	// ImageBaseURL prefixes poster paths.
	ImageBaseURL string
	// LinkBaseURL prefixes canonical detail-page links.
	LinkBaseURL string
	// Timeout bounds each lookup call.
	Timeout time.Duration
	// HTTPClient overrides the transport, for tests.
	HTTPClient *http.Client
}

// Client resolves media items against the catalog API.
type Client struct {
	apiKey    string
	baseURL   string
	imageBase string
	linkBase  string
	http      *http.Client
	timeout   time.Duration
}

var _ tool.MetadataClient = (*Client)(nil)

// NewClient constructs a catalog client authenticated with apiKey.
func NewClient(apiKey string, optFns ...func(o *Options)) *Client {
	opts := Options{
		BaseURL:      defaultBaseURL,
		ImageBaseURL: defaultImageBase,
		LinkBaseURL:  defaultLinkBase,
		Timeout:      8 * time.Second,
		HTTPClient:   http.DefaultClient,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{
		apiKey:    apiKey,
		baseURL:   opts.BaseURL,
		imageBase: opts.ImageBaseURL,
		linkBase:  opts.LinkBaseURL,
		http:      opts.HTTPClient,
		timeout:   opts.Timeout,
	}
}

type searchResult struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	Name         string `json:"name"` // tv results carry name instead of title
	MediaType    string `json:"media_type"`
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
	Overview     string `json:"overview"`
	PosterPath   string `json:"poster_path"`
}

type searchPage struct {
	Results []searchResult `json:"results"`
}

// Lookup implements tool.MetadataClient. A missing record is reported as
// tool.ErrNotFound; transport failures and 5xx responses are reported as
// transient core.UpstreamError values.
func (c *Client) Lookup(ctx context.Context, q tool.MetadataQuery) (*tool.MetadataRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if q.ID != "" {
		return c.byID(ctx, q)
	}
	if q.Title == "" {
		return nil, fmt.Errorf("metadata lookup needs an id or a title: %w", tool.ErrNotFound)
	}

	hit, err := c.search(ctx, q.Title, q.Year, q.MediaType)
	if err == nil {
		return c.toRecord(hit, q.MediaType), nil
	}
	if q.Year != "" && errors.Is(err, tool.ErrNotFound) {
		hit, err = c.search(ctx, q.Title, "", q.MediaType)
		if err == nil {
			return c.toRecord(hit, q.MediaType), nil
		}
	}
	return nil, err
}

func (c *Client) byID(ctx context.Context, q tool.MetadataQuery) (*tool.MetadataRecord, error) {
	mediaType := q.MediaType
	if mediaType == "" {
		mediaType = "movie"
	}

	var res searchResult
	status, err := c.get(ctx, fmt.Sprintf("/%s/%s", mediaType, q.ID), nil, &res)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, tool.ErrNotFound
	}
	res.MediaType = mediaType
	return c.toRecord(&res, mediaType), nil
}

func (c *Client) search(ctx context.Context, title, year, mediaType string) (*searchResult, error) {
	path := "/search/multi"
	params := url.Values{"query": {title}}
	switch mediaType {
	case "movie":
		path = "/search/movie"
		if year != "" {
			params.Set("year", year)
		}
	case "tv":
		path = "/search/tv"
		if year != "" {
			params.Set("first_air_date_year", year)
		}
	default:
		// multi search has no year filter; narrow locally below.
	}

	var page searchPage
	status, err := c.get(ctx, path, params, &page)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || len(page.Results) == 0 {
		return nil, tool.ErrNotFound
	}

	for i := range page.Results {
		hit := &page.Results[i]
		if hit.MediaType == "person" {
			continue
		}
		if year != "" && mediaType == "" && yearOf(hit) != year {
			continue
		}
		return hit, nil
	}
	return nil, tool.ErrNotFound
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) (int, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build catalog request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, core.NewTimeoutError("tmdb.lookup", err)
		}
		return 0, core.NewUnavailableError("tmdb.lookup", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return resp.StatusCode, core.NewUnavailableError("tmdb.lookup", fmt.Errorf("catalog returned %d", resp.StatusCode))
	default:
		return resp.StatusCode, fmt.Errorf("catalog rejected request with status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return resp.StatusCode, nil
}

func (c *Client) toRecord(hit *searchResult, requestedType string) *tool.MetadataRecord {
	mediaType := hit.MediaType
	if mediaType == "" {
		mediaType = requestedType
	}
	if mediaType == "" {
		if hit.Title != "" {
			mediaType = "movie"
		} else {
			mediaType = "tv"
		}
	}

	title := hit.Title
	if title == "" {
		title = hit.Name
	}

	rec := &tool.MetadataRecord{
		ID:        strconv.Itoa(hit.ID),
		Title:     title,
		MediaType: mediaType,
		Year:      yearOf(hit),
		Overview:  hit.Overview,
		Link:      fmt.Sprintf("%s/%s/%d", c.linkBase, mediaType, hit.ID),
	}
	if hit.PosterPath != "" {
		rec.PosterURL = c.imageBase + hit.PosterPath
	}
	return rec
}

func yearOf(hit *searchResult) string {
	date := hit.ReleaseDate
	if date == "" {
		date = hit.FirstAirDate
	}
	if len(date) < 4 {
		return ""
	}
	return date[:4]
}
