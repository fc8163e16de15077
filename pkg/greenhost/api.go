package greenhost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alexis-pagnon/green-optimizer/models"
)

// DefaultAPIURL is the Green Web Foundation API root.
const DefaultAPIURL = "https://api.thegreenwebfoundation.org"

// API queries the Green Web Foundation greencheck endpoint.
type API struct {
	BaseURL string
	Client  *http.Client
}

// NewAPI creates an API checker. An empty baseURL uses DefaultAPIURL.
func NewAPI(baseURL string) *API {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &API{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type greencheckResponse struct {
	URL      string `json:"url"`
	Green    bool   `json:"green"`
	HostedBy string `json:"hosted_by"`
}

func (a *API) Check(ctx context.Context, domain string) (models.GreenHostSignal, error) {
	d := normalizeDomain(domain)
	if d == "" {
		return models.UnknownHost(), fmt.Errorf("empty domain")
	}
	endpoint := a.BaseURL + "/api/v3/greencheck/" + url.PathEscape(d)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.UnknownHost(), fmt.Errorf("failed to build greencheck request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return models.UnknownHost(), fmt.Errorf("failed to query greencheck for %s: %w", d, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.UnknownHost(), fmt.Errorf("greencheck for %s returned status %d", d, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.UnknownHost(), fmt.Errorf("failed to read greencheck response: %w", err)
	}
	var out greencheckResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return models.UnknownHost(), fmt.Errorf("failed to decode greencheck response: %w", err)
	}

	return models.GreenHostSignal{Known: true, IsGreen: out.Green, HostedBy: out.HostedBy}, nil
}
