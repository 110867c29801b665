package directions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/neexbeast/tripplanner/internal/geo"
)

const (
	httpTimeout        = 10 * time.Second
	kakaoDirectionsURL = "https://apis-navi.kakaomobility.com/v1/directions"
)

// Route is the routing result between two coordinates. A zero DurationSeconds
// means no route was found.
type Route struct {
	DurationSeconds int `json:"duration_seconds"`
	DistanceMeters  int `json:"distance_meters"`
}

// newHTTPClient returns an http.Client with a 10-second timeout.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// doGet performs an authorized GET request and decodes the JSON response into dst.
func doGet(ctx context.Context, client *http.Client, rawURL, authorization string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request for %s: %w", rawURL, err)
	}
	req.Header.Set("Authorization", authorization)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned status %d", rawURL, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding response from %s: %w", rawURL, err)
	}

	return nil
}

// KakaoClient queries the Kakao Mobility car directions API.
type KakaoClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewKakaoClient constructs a KakaoClient with the given REST API key.
func NewKakaoClient(apiKey string) *KakaoClient {
	return &KakaoClient{apiKey: apiKey, baseURL: kakaoDirectionsURL, client: newHTTPClient()}
}

// NewKakaoClientWithURL constructs a KakaoClient pointing at a custom base URL (for tests).
func NewKakaoClientWithURL(baseURL, apiKey string) *KakaoClient {
	return &KakaoClient{apiKey: apiKey, baseURL: baseURL, client: newHTTPClient()}
}

type kakaoResponse struct {
	Routes []struct {
		ResultCode int    `json:"result_code"`
		ResultMsg  string `json:"result_msg"`
		Summary    struct {
			Distance int `json:"distance"`
			Duration int `json:"duration"`
		} `json:"summary"`
	} `json:"routes"`
}

// coord formats a point as Kakao's "lng,lat".
func coord(p geo.Point) string {
	return strconv.FormatFloat(p.Lng, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lat, 'f', 6, 64)
}

// Route returns the recommended route summary from one point to another.
// A missing or failed route yields a zero Route and no error.
func (c *KakaoClient) Route(ctx context.Context, from, to geo.Point) (Route, error) {
	q := url.Values{}
	q.Set("origin", coord(from))
	q.Set("destination", coord(to))
	q.Set("priority", "RECOMMEND")
	endpoint := c.baseURL + "?" + q.Encode()

	var raw kakaoResponse
	if err := doGet(ctx, c.client, endpoint, "KakaoAK "+c.apiKey, &raw); err != nil {
		return Route{}, fmt.Errorf("kakao directions: %w", err)
	}

	if len(raw.Routes) == 0 || raw.Routes[0].ResultCode != 0 {
		return Route{}, nil
	}

	s := raw.Routes[0].Summary
	return Route{DurationSeconds: s.Duration, DistanceMeters: s.Distance}, nil
}
