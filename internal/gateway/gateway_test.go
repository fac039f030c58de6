package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/riskservice/internal/cache"
	"github.com/opensource-finance/riskservice/internal/domain"
	"github.com/opensource-finance/riskservice/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func partnerQuery() *query.Select {
	return query.From(domain.EntityBusinessPartners)
}

func TestODataGateway(t *testing.T) {
	t.Run("RendersQueryAndCopiesHeaders", func(t *testing.T) {
		var gotPath, gotFilter, gotTop, gotFormat, gotKey string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotFilter = r.URL.Query().Get("$filter")
			gotTop = r.URL.Query().Get("$top")
			gotFormat = r.URL.Query().Get("$format")
			gotKey = r.Header.Get(domain.APIKeyHeader)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"d":{"results":[{"BusinessPartner":"BP1","FirstName":"Ada","LastName":"Lovelace"}]}}`))
		}))
		defer srv.Close()

		gw := NewODataGateway(srv.URL+"/", time.Second)
		q := partnerQuery().And(query.Ne("LastName", ""), query.In("BusinessPartner", "BP1", "BP2"))
		q.Limit = 5

		partners, err := gw.Send(context.Background(), q, map[string]string{domain.APIKeyHeader: "secret"})
		require.NoError(t, err)
		require.Len(t, partners, 1)
		assert.Equal(t, "Ada", partners[0].FirstName)

		assert.Equal(t, "/"+RemoteEntitySet, gotPath)
		assert.Equal(t, "LastName ne '' and (BusinessPartner eq 'BP1' or BusinessPartner eq 'BP2')", gotFilter)
		assert.Equal(t, "5", gotTop)
		assert.Equal(t, "json", gotFormat)
		assert.Equal(t, "secret", gotKey)
	})

	t.Run("AcceptsV4Envelope", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"value":[{"BusinessPartner":"BP2"}]}`))
		}))
		defer srv.Close()

		partners, err := NewODataGateway(srv.URL, 0).Send(context.Background(), partnerQuery(), nil)
		require.NoError(t, err)
		require.Len(t, partners, 1)
		assert.Equal(t, "BP2", partners[0].BusinessPartner)
	})

	t.Run("EmptyResultIsNotNil", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"d":{"results":[]}}`))
		}))
		defer srv.Close()

		partners, err := NewODataGateway(srv.URL, 0).Send(context.Background(), partnerQuery(), nil)
		require.NoError(t, err)
		assert.NotNil(t, partners)
		assert.Empty(t, partners)
	})

	t.Run("FollowsV2NextLink", func(t *testing.T) {
		var calls atomic.Int32
		var gotKeys []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			gotKeys = append(gotKeys, r.Header.Get(domain.APIKeyHeader))
			if r.URL.Query().Get("$skiptoken") == "" {
				_, _ = w.Write([]byte(`{"d":{"results":[{"BusinessPartner":"BP1"}],"__next":"A_BusinessPartner?$skiptoken=2"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"d":{"results":[{"BusinessPartner":"BP2"}]}}`))
		}))
		defer srv.Close()

		q := partnerQuery().And(query.In("BusinessPartner", "BP1", "BP2"))
		partners, err := NewODataGateway(srv.URL, 0).Send(context.Background(), q, map[string]string{domain.APIKeyHeader: "secret"})
		require.NoError(t, err)
		require.Len(t, partners, 2)
		assert.Equal(t, "BP1", partners[0].BusinessPartner)
		assert.Equal(t, "BP2", partners[1].BusinessPartner)
		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, []string{"secret", "secret"}, gotKeys)
	})

	t.Run("StopsPagingAtLimit", func(t *testing.T) {
		var calls atomic.Int32
		var srv *httptest.Server
		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			_, _ = w.Write([]byte(`{"value":[{"BusinessPartner":"BP1"},{"BusinessPartner":"BP2"}],"@odata.nextLink":"` + srv.URL + `/A_BusinessPartner?page=2"}`))
		}))
		defer srv.Close()

		q := partnerQuery()
		q.Limit = 2
		partners, err := NewODataGateway(srv.URL, 0).Send(context.Background(), q, nil)
		require.NoError(t, err)
		assert.Len(t, partners, 2)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("EndlessPagingFails", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"value":[],"@odata.nextLink":"A_BusinessPartner?again=1"}`))
		}))
		defer srv.Close()

		_, err := NewODataGateway(srv.URL, 0).Send(context.Background(), partnerQuery(), nil)
		assert.Error(t, err)
	})

	t.Run("PropagatesTraceContext", func(t *testing.T) {
		previous := otel.GetTextMapPropagator()
		otel.SetTextMapPropagator(propagation.TraceContext{})
		t.Cleanup(func() { otel.SetTextMapPropagator(previous) })

		var gotParent string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotParent = r.Header.Get("traceparent")
			_, _ = w.Write([]byte(`{"value":[]}`))
		}))
		defer srv.Close()

		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36},
			SpanID:     trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7},
			TraceFlags: trace.FlagsSampled,
		})
		ctx := trace.ContextWithSpanContext(context.Background(), sc)

		_, err := NewODataGateway(srv.URL, 0).Send(ctx, partnerQuery(), nil)
		require.NoError(t, err)
		assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", gotParent)
	})

	t.Run("NonSuccessBecomesStatusError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"fault":"Invalid ApiKey"}`, http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := NewODataGateway(srv.URL, 0).Send(context.Background(), partnerQuery(), nil)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
		assert.Contains(t, se.Body, "Invalid ApiKey")
	})

	t.Run("MalformedBody", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}))
		defer srv.Close()

		_, err := NewODataGateway(srv.URL, 0).Send(context.Background(), partnerQuery(), nil)
		assert.Error(t, err)
	})

	t.Run("RejectsForeignEntity", func(t *testing.T) {
		_, err := NewODataGateway("http://unused", 0).Send(context.Background(), query.From(domain.EntityRisks), nil)
		assert.ErrorIs(t, err, query.ErrInvalidQuery)
	})
}

func TestSandboxGateway(t *testing.T) {
	partners, err := LoadFixture(filepath.Join("testdata", "partners.yaml"))
	require.NoError(t, err)
	require.Len(t, partners, 3)

	ctx := context.Background()
	gw := NewSandboxGateway(partners, "")

	t.Run("NoPredicatesReturnsAll", func(t *testing.T) {
		got, err := gw.Send(ctx, partnerQuery(), nil)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("NameFilter", func(t *testing.T) {
		q := partnerQuery().And(query.Ne("LastName", ""), query.Ne("FirstName", ""))
		got, err := gw.Send(ctx, q, nil)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "BP1", got[0].BusinessPartner)
		assert.Equal(t, "BP2", got[1].BusinessPartner)
	})

	t.Run("InAndBool", func(t *testing.T) {
		q := partnerQuery().And(
			query.In("BusinessPartner", "BP1", "BP2", "BP9"),
			query.Eq("BusinessPartnerIsBlocked", true),
		)
		got, err := gw.Send(ctx, q, nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Babbage", got[0].LastName)
	})

	t.Run("OrderAndPaging", func(t *testing.T) {
		q := partnerQuery()
		q.OrderBy = []query.Order{{Field: "LastName", Desc: true}}
		q.Offset = 1
		q.Limit = 1

		got, err := gw.Send(ctx, q, nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "BP3", got[0].BusinessPartner)

		q.Offset = 10
		got, err = gw.Send(ctx, q, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("UnknownFieldIsBadRequest", func(t *testing.T) {
		_, err := gw.Send(ctx, partnerQuery().And(query.Eq("Salary", int64(1))), nil)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadRequest, se.StatusCode)

		q := partnerQuery()
		q.OrderBy = []query.Order{{Field: "Salary"}}
		_, err = gw.Send(ctx, q, nil)
		require.ErrorAs(t, err, &se)
	})

	t.Run("ExpandIsBadRequest", func(t *testing.T) {
		_, err := gw.Send(ctx, partnerQuery().Select(query.Expand("to_Address")), nil)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	})

	t.Run("APIKey", func(t *testing.T) {
		keyed := NewSandboxGateway(partners, "secret")

		_, err := keyed.Send(ctx, partnerQuery(), nil)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusUnauthorized, se.StatusCode)

		got, err := keyed.Send(ctx, partnerQuery(), map[string]string{domain.APIKeyHeader: "secret"})
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})
}

func TestLoadFixture(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadFixture(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("PartnerWithoutID", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("partners:\n  - FirstName: Ada\n"), 0o644))

		_, err := LoadFixture(path)
		assert.Error(t, err)
	})
}

// countingGateway counts delegate calls and returns a fixed result.
type countingGateway struct {
	calls    atomic.Int32
	partners []*domain.BusinessPartner
	err      error
}

func (g *countingGateway) Send(context.Context, *query.Select, map[string]string) ([]*domain.BusinessPartner, error) {
	g.calls.Add(1)
	return g.partners, g.err
}

func TestCachedGateway(t *testing.T) {
	ctx := context.Background()

	t.Run("HitSkipsDelegate", func(t *testing.T) {
		next := &countingGateway{partners: []*domain.BusinessPartner{{BusinessPartner: "BP1", FirstName: "Ada"}}}
		gw := NewCachedGateway(next, cache.NewLRUCache(10), time.Minute, nil)

		q := partnerQuery().And(query.In("BusinessPartner", "BP1"))
		for range 3 {
			got, err := gw.Send(ctx, q, nil)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "Ada", got[0].FirstName)
		}
		assert.EqualValues(t, 1, next.calls.Load())

		other := partnerQuery().And(query.In("BusinessPartner", "BP2"))
		_, err := gw.Send(ctx, other, nil)
		require.NoError(t, err)
		assert.EqualValues(t, 2, next.calls.Load())
	})

	t.Run("ErrorsAreNotCached", func(t *testing.T) {
		next := &countingGateway{err: &StatusError{StatusCode: http.StatusBadGateway}}
		gw := NewCachedGateway(next, cache.NewLRUCache(10), time.Minute, nil)

		for range 2 {
			_, err := gw.Send(ctx, partnerQuery(), nil)
			assert.Error(t, err)
		}
		assert.EqualValues(t, 2, next.calls.Load())
	})

	t.Run("BrokenCacheIsBypassed", func(t *testing.T) {
		next := &countingGateway{partners: []*domain.BusinessPartner{{BusinessPartner: "BP1"}}}
		gw := NewCachedGateway(next, failingCache{}, time.Minute, nil)

		got, err := gw.Send(ctx, partnerQuery(), nil)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}

type failingCache struct{}

var errCacheDown = errors.New("cache down")

func (failingCache) Get(context.Context, string, string) ([]byte, error) { return nil, errCacheDown }
func (failingCache) Set(context.Context, string, string, []byte, time.Duration) error {
	return errCacheDown
}
func (failingCache) Delete(context.Context, string, string) error { return errCacheDown }
func (failingCache) Ping(context.Context) error                   { return errCacheDown }
func (failingCache) Close() error                                 { return nil }

func TestNew(t *testing.T) {
	t.Run("SandboxDefaults", func(t *testing.T) {
		gw, err := New(domain.GatewayConfig{Type: "sandbox"}, nil, nil)
		require.NoError(t, err)

		got, err := gw.Send(context.Background(), partnerQuery(), nil)
		require.NoError(t, err)
		assert.Len(t, got, len(DefaultPartners()))
	})

	t.Run("SandboxFixture", func(t *testing.T) {
		gw, err := New(domain.GatewayConfig{
			Type:           "sandbox",
			SandboxFixture: filepath.Join("testdata", "partners.yaml"),
			CacheEnabled:   true,
		}, cache.NewLRUCache(10), nil)
		require.NoError(t, err)

		got, err := gw.Send(context.Background(), partnerQuery(), nil)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("ODataRequiresBaseURL", func(t *testing.T) {
		_, err := New(domain.GatewayConfig{Type: "odata"}, nil, nil)
		assert.Error(t, err)
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		_, err := New(domain.GatewayConfig{Type: "soap"}, nil, nil)
		assert.Error(t, err)
	})

	t.Run("InstrumentedPassesErrorsThrough", func(t *testing.T) {
		want := &StatusError{StatusCode: http.StatusTooManyRequests}
		gw := Instrument(&countingGateway{err: want}, "test")

		_, err := gw.Send(context.Background(), partnerQuery(), nil)
		assert.Same(t, want, err)
		assert.Equal(t, "429", errorResult(err))
	})
}
