// Package bigquery is a minimal BigQuery REST client used to probe a
// connection: it lists or fetches datasets through the retry core so that
// credential expiry and transient errors are handled the same way the rest
// of the driver handles them.
package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/auth"
	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/retry"
)

const DefaultEndpoint = "https://bigquery.googleapis.com/bigquery/v2"

// TokenProvider supplies the bearer token for each attempt.
type TokenProvider interface {
	Token(ctx context.Context) (auth.CredentialToken, error)
}

// Client issues BigQuery REST calls for one project.
type Client struct {
	Endpoint   string
	ProjectID  string
	UserAgent  string
	HTTPClient *http.Client
	Tokens     TokenProvider
	Caller     *retry.Caller
}

// DatasetReference identifies a dataset.
type DatasetReference struct {
	ProjectID string `json:"projectId"`
	DatasetID string `json:"datasetId"`
}

// Dataset is the subset of the dataset resource we read.
type Dataset struct {
	ID               string           `json:"id"`
	DatasetReference DatasetReference `json:"datasetReference"`
	Location         string           `json:"location"`
	FriendlyName     string           `json:"friendlyName,omitempty"`
}

// DatasetList is a single page of datasets.
type DatasetList struct {
	Datasets      []Dataset `json:"datasets"`
	NextPageToken string    `json:"nextPageToken,omitempty"`
}

// ListDatasets returns the first page of datasets in the project.
func (c *Client) ListDatasets(ctx context.Context) (DatasetList, error) {
	path := fmt.Sprintf("/projects/%s/datasets", url.PathEscape(c.ProjectID))

	return retry.Execute(ctx, c.Caller, "ListDatasets", func(ctx context.Context) (DatasetList, error) {
		var list DatasetList
		err := c.get(ctx, path, &list)
		return list, err
	})
}

// GetDataset fetches one dataset by id.
func (c *Client) GetDataset(ctx context.Context, datasetID string) (Dataset, error) {
	path := fmt.Sprintf("/projects/%s/datasets/%s", url.PathEscape(c.ProjectID), url.PathEscape(datasetID))

	return retry.Execute(ctx, c.Caller, "GetDataset", func(ctx context.Context) (Dataset, error) {
		var ds Dataset
		err := c.get(ctx, path, &ds)
		return ds, err
	})
}

// get performs one attempt. It fetches the token on every attempt so the
// retry after a refresh picks up the new credential.
func (c *Client) get(ctx context.Context, path string, out any) error {
	tok, err := c.Tokens.Token(ctx)
	if err != nil {
		return err
	}

	endpoint := strings.TrimRight(c.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StatusFailure(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}
