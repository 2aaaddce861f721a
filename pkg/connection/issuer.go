package connection

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Issuer hands out fresh connection details. The request carries no body; the
// server derives the room name and generates a participant identity itself.
type Issuer interface {
	Fetch(ctx context.Context) (Details, error)
}

// HTTPIssuer fetches details from the token-issuing backend over HTTP.
type HTTPIssuer struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPIssuer(endpoint string) *HTTPIssuer {
	return &HTTPIssuer{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (i *HTTPIssuer) Fetch(ctx context.Context) (Details, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.Endpoint, nil)
	if err != nil {
		return Details{}, errors.Wrap(err, "failed to build connection details request")
	}
	client := i.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Details{}, errors.Wrap(err, "connection details request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Details{}, &FetchError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var details Details
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return Details{}, errors.Wrap(err, "failed to decode connection details")
	}
	return details, nil
}
