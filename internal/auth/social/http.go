package social

import (
	"context"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

const maxBodySize = 1 << 20

// fetcher performs provider API calls on a shared client
type fetcher struct {
	client *http.Client
}

// get fetches endpoint and returns a JSON body. A non-empty bearer is sent in the
// Authorization header.
func (f *fetcher) get(ctx context.Context, endpoint, bearer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, failure("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")

	client := f.client
	if bearer != "" {
		client = &http.Client{
			Timeout: f.client.Timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearer}),
				Base:   f.client.Transport,
			},
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, failure("failed to reach provider", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, failure("failed to read provider response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}
	if !gjson.ValidBytes(body) {
		return nil, failure("invalid response from provider", nil)
	}
	return body, nil
}

// extra keeps the raw provider fields for the association row
func extra(body []byte) map[string]any {
	m, ok := gjson.ParseBytes(body).Value().(map[string]any)
	if !ok {
		return nil
	}
	return m
}
