// Package feed fetches State/UT road accident statistics from the data.gov.in
// resource API.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gigsafe/internal/regional/models"
)

const (
	// DefaultBaseURL is the data.gov.in resource API root.
	DefaultBaseURL = "https://api.data.gov.in/resource"
	// AccidentResourceID is the State/UT-wise road accidents 2021-2022 resource.
	AccidentResourceID = "2e4c9d75-01a2-4438-a891-7c0ddb72c2c2"

	maxResponseBytes = 1 << 20
	recordLimit      = 100
)

// DataGovClient reads the accident resource. Each returned row carries one
// column per year ("_2021", "_2022").
type DataGovClient struct {
	baseURL    string
	resourceID string
	apiKey     string
	httpClient *http.Client
}

type Option func(*DataGovClient)

func WithHTTPClient(c *http.Client) Option {
	return func(d *DataGovClient) {
		if c != nil {
			d.httpClient = c
		}
	}
}

func WithResourceID(resourceID string) Option {
	return func(d *DataGovClient) {
		if resourceID != "" {
			d.resourceID = resourceID
		}
	}
}

// NewDataGovClient builds a client. An empty baseURL selects DefaultBaseURL.
func NewDataGovClient(baseURL, apiKey string, opts ...Option) *DataGovClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &DataGovClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		resourceID: AccidentResourceID,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type resourceResponse struct {
	UpdatedDate string           `json:"updated_date"`
	Records     []map[string]any `json:"records"`
}

// Fetch downloads the resource and converts every row into per-year records.
func (c *DataGovClient) Fetch(ctx context.Context) (models.Dataset, error) {
	q := url.Values{}
	q.Set("api-key", c.apiKey)
	q.Set("format", "json")
	q.Set("limit", strconv.Itoa(recordLimit))
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, c.resourceID, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Dataset{}, fmt.Errorf("build regional feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Dataset{}, fmt.Errorf("regional feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return models.Dataset{}, fmt.Errorf("regional feed returned status %d", resp.StatusCode)
	}

	var body resourceResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return models.Dataset{}, fmt.Errorf("decode regional feed: %w", err)
	}

	records := ParseRows(body.Records)
	if len(records) == 0 {
		return models.Dataset{}, models.ErrNoRecords
	}
	return models.Dataset{
		Records: records,
		AsOf:    parseUpdatedDate(body.UpdatedDate),
		Source:  "data.gov.in:" + c.resourceID,
	}, nil
}

// ParseRows converts raw resource rows. Columns named "_YYYY" hold the total
// accidents for that year; aggregate rows ("Total") and unparseable cells are
// skipped.
func ParseRows(rows []map[string]any) []models.Record {
	var out []models.Record
	for _, row := range rows {
		region, _ := row["state_ut"].(string)
		region = strings.TrimSpace(region)
		if region == "" || strings.HasPrefix(strings.ToLower(region), "total") {
			continue
		}
		for col, raw := range row {
			if len(col) != 5 || col[0] != '_' {
				continue
			}
			year, err := strconv.Atoi(col[1:])
			if err != nil {
				continue
			}
			n, ok := toInt(raw)
			if !ok {
				continue
			}
			out = append(out, models.Record{Region: region, Year: year, TotalAccidents: n})
		}
	}
	return out
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(x), ",", ""))
		return n, err == nil
	}
	return 0, false
}

func parseUpdatedDate(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

// Static serves the bundled dataset. It is used when no feed URL or API key is
// configured.
type Static struct{}

func (Static) Fetch(context.Context) (models.Dataset, error) {
	return models.StaticDataset(), nil
}
