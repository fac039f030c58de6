package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opensource-finance/riskservice/internal/domain"
	"github.com/opensource-finance/riskservice/internal/query"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// maxErrorBody bounds how much of an error response is kept in StatusError.
const maxErrorBody = 512

// maxPages bounds how many server-driven pages one Send follows.
const maxPages = 100

// ODataGateway reads partners from an OData service over HTTP.
type ODataGateway struct {
	baseURL string
	client  *http.Client
}

// NewODataGateway creates a gateway for the service at baseURL.
// A zero timeout defaults to 30 seconds.
func NewODataGateway(baseURL string, timeout time.Duration) *ODataGateway {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ODataGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// odataResponse accepts both the v2 envelope {"d":{"results":[...],"__next":...}}
// and the v4 envelope {"value":[...],"@odata.nextLink":...}.
type odataResponse struct {
	D *struct {
		Results []*domain.BusinessPartner `json:"results"`
		Next    string                    `json:"__next"`
	} `json:"d"`
	Value    []*domain.BusinessPartner `json:"value"`
	NextLink string                    `json:"@odata.nextLink"`
}

func (r *odataResponse) page() ([]*domain.BusinessPartner, string) {
	if r.D != nil {
		return r.D.Results, r.D.Next
	}
	return r.Value, r.NextLink
}

// Send renders q as OData query options and issues a GET, following
// server-driven paging links until q.Limit partners are read or no link
// remains. Every header is sent on each page request.
func (g *ODataGateway) Send(ctx context.Context, q *query.Select, headers map[string]string) ([]*domain.BusinessPartner, error) {
	target, err := g.requestURL(q)
	if err != nil {
		return nil, err
	}

	partners := []*domain.BusinessPartner{}
	for range maxPages {
		page, next, err := g.fetch(ctx, target, headers)
		if err != nil {
			return nil, err
		}
		partners = append(partners, page...)

		if q.Limit > 0 && len(partners) >= q.Limit {
			return partners[:q.Limit], nil
		}
		if next == "" {
			return partners, nil
		}
		if target, err = resolveLink(target, next); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("partner response exceeded %d pages", maxPages)
}

func (g *ODataGateway) fetch(ctx context.Context, target string, headers map[string]string) ([]*domain.BusinessPartner, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build partner request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("partner request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var payload odataResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, "", fmt.Errorf("failed to decode partner response: %w", err)
	}
	page, next := payload.page()
	return page, next, nil
}

// resolveLink resolves a next link, which may be relative, against the
// request it came from.
func resolveLink(current, next string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("bad partner request URL: %w", err)
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("bad partner next link %q: %w", next, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (g *ODataGateway) requestURL(q *query.Select) (string, error) {
	if q.From != domain.EntityBusinessPartners {
		return "", fmt.Errorf("%w: partner API cannot serve %q", query.ErrInvalidQuery, q.From)
	}

	params, err := q.Values()
	if err != nil {
		return "", err
	}
	params.Set("$format", "json")

	// OData services expect %20 rather than + inside $filter
	encoded := strings.ReplaceAll(params.Encode(), "+", "%20")
	return g.baseURL + "/" + RemoteEntitySet + "?" + encoded, nil
}
