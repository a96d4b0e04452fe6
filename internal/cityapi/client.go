package cityapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorodbot/server/internal/agent/model"
	"github.com/gorodbot/server/internal/agent/resilience"
	logx "github.com/gorodbot/server/pkg/logger"
)

// Client talks to the "Я здесь живу" city services gateway. Two hosts are
// involved: the geo host for building search and the site host for every
// domain endpoint. All requests are GETs with query parameters and a region
// header, wrapped in the shared API retry policy.
type Client struct {
	site   string
	geoV1  string
	geoV2  string
	region string
	http   *http.Client
	policy resilience.Policy
}

func NewClient(cfg model.CityAPIConfig, policy resilience.Policy) *Client {
	geo := strings.TrimRight(cfg.GeoBaseURL, "/")
	return &Client{
		site:   strings.TrimRight(cfg.BaseURL, "/"),
		geoV1:  geo + "/api/v1",
		geoV2:  geo + "/api/v2",
		region: cfg.RegionID,
		http: &http.Client{
			Timeout: policy.Timeout + 5*time.Second,
		},
		policy: policy,
	}
}

// getJSON performs one resilient GET and returns the raw response body.
// Gateway errors and timeouts are retried per the policy; 4xx responses are
// not, since repeating the same request cannot succeed.
func (c *Client) getJSON(ctx context.Context, name, rawURL string, params url.Values) (string, error) {
	full := rawURL
	if len(params) > 0 {
		full = rawURL + "?" + params.Encode()
	}

	body, failure := resilience.Do(ctx, name, c.policy, func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
		if err != nil {
			return "", resilience.NewError(resilience.KindValidation, "build request", err)
		}
		req.Header.Set("region", c.region)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return "", resilience.NewError(resilience.KindTransient, "read response", err)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return "", resilience.NewError(resilience.KindRateLimit, "rate limited", nil)
		case resp.StatusCode == http.StatusBadGateway || resp.StatusCode == http.StatusGatewayTimeout:
			return "", resilience.NewError(resilience.KindTransient, fmt.Sprintf("gateway error %d", resp.StatusCode), nil)
		case resp.StatusCode >= 500:
			return "", resilience.NewError(resilience.KindServiceUnavailable, fmt.Sprintf("server error %d", resp.StatusCode), nil)
		case resp.StatusCode >= 400:
			return "", resilience.NewError(resilience.KindValidation, fmt.Sprintf("request rejected with %d", resp.StatusCode), nil)
		}
		return string(data), nil
	})
	if failure != nil {
		logx.Warn().Str("endpoint", name).Str("kind", string(failure.Kind)).Msg("city api call failed")
		return "", failure
	}
	return body, nil
}

func (c *Client) siteURL(path string) string { return c.site + path }
