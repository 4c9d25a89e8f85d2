package tibber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/angas/elprice/httputil"
)

const defaultURL = "https://api.tibber.com/v1-beta/gql"

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse[T any] struct {
	Data struct {
		Viewer struct {
			Home T `json:"home"`
		} `json:"viewer"`
	} `json:"data"`
	Errors []struct {
		Message string   `json:"message"`
		Path    []string `json:"path"`
	} `json:"errors,omitempty"`
}

type Tibber struct {
	apiToken string
	homeId   string
	url      string
	client   *http.Client
	retry    httputil.RetryConfig
}

type Option func(*Tibber)

func WithURL(url string) Option {
	return func(t *Tibber) { t.url = url }
}

func WithHTTPClient(c *http.Client) Option {
	return func(t *Tibber) { t.client = c }
}

func WithRetry(cfg httputil.RetryConfig) Option {
	return func(t *Tibber) { t.retry = cfg }
}

func New(apiToken string, homeId string, opts ...Option) *Tibber {
	t := &Tibber{
		apiToken: apiToken,
		homeId:   homeId,
		url:      defaultURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		retry:    httputil.DefaultRetry,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func doQuery[T any](ctx context.Context, t *Tibber, innerQuery string) (*queryResponse[T], error) {
	query := fmt.Sprintf(`query {
		viewer {
			home(id:"%s") {
				%s
			}
		}
	}`, t.homeId, innerQuery)

	reqBody, err := json.Marshal(queryRequest{Query: query})
	if err != nil {
		return nil, err
	}

	res, err := httputil.Do(ctx, t.client, t.retry, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+t.apiToken)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	resBody := new(queryResponse[T])
	if err := httputil.DecodeJSON(res, resBody); err != nil {
		return nil, err
	}

	if resBody.Errors != nil {
		messages := make([]string, len(resBody.Errors))
		for i, err := range resBody.Errors {
			messages[i] = err.Message
		}
		return nil, fmt.Errorf("graphql error: %s", strings.Join(messages, "; "))
	}

	return resBody, nil
}
