package stats

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
)

const defaultStatHatURL = "https://api.stathat.com/ez"

// StatHat sends stats to the StatHat EZ API.
type StatHat struct {
	EZKey  string       // required
	URL    string       // default: https://api.stathat.com/ez
	Client *http.Client // default: cleanhttp.DefaultClient()
}

func (s *StatHat) CountMetric(ctx context.Context, name string, count int) (int, error) {
	return s.post(ctx, url.Values{
		"ezkey": {s.EZKey},
		"stat":  {name},
		"count": {strconv.Itoa(count)},
	})
}

func (s *StatHat) ValueMetric(ctx context.Context, name string, value float64) (int, error) {
	return s.post(ctx, url.Values{
		"ezkey": {s.EZKey},
		"stat":  {name},
		"value": {strconv.FormatFloat(value, 'f', -1, 64)},
	})
}

func (s *StatHat) post(ctx context.Context, form url.Values) (int, error) {
	endpoint := s.URL
	if endpoint == "" {
		endpoint = defaultStatHatURL
	}
	client := s.Client
	if client == nil {
		client = cleanhttp.DefaultClient()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("stats.StatHat: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("stats.StatHat: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
