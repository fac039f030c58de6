package service

import (
	"context"
	"errors"
	"testing"

	"github.com/opensource-finance/riskservice/internal/domain"
	"github.com/opensource-finance/riskservice/internal/query"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore records the executed query and returns copies of its risks.
type fakeStore struct {
	risks    []domain.Risk
	err      error
	executed []*query.Select
}

func (f *fakeStore) Execute(_ context.Context, q *query.Select) ([]*domain.Risk, error) {
	f.executed = append(f.executed, q.Clone())
	if f.err != nil {
		return nil, f.err
	}
	out := []*domain.Risk{}
	for i := range f.risks {
		r := f.risks[i]
		out = append(out, &r)
	}
	return out, nil
}

func (f *fakeStore) SaveRisk(context.Context, *domain.Risk) error { return nil }
func (f *fakeStore) Ping(context.Context) error                   { return nil }
func (f *fakeStore) Close() error                                 { return nil }

type gatewayCall struct {
	q       *query.Select
	headers map[string]string
}

// fakeGateway returns the partners whose id is in an In predicate, or all of
// them when the query has none.
type fakeGateway struct {
	partners []*domain.BusinessPartner
	err      error
	calls    []gatewayCall
}

func (f *fakeGateway) Send(_ context.Context, q *query.Select, headers map[string]string) ([]*domain.BusinessPartner, error) {
	f.calls = append(f.calls, gatewayCall{q: q.Clone(), headers: headers})
	if f.err != nil {
		return nil, f.err
	}
	wanted := map[any]bool{}
	for _, p := range q.Where {
		if p.Op == query.OpIn && p.Field == domain.PartnerFieldID {
			for _, v := range p.Values {
				wanted[v] = true
			}
		}
	}
	out := []*domain.BusinessPartner{}
	for _, bp := range f.partners {
		if len(wanted) == 0 || wanted[bp.BusinessPartner] {
			out = append(out, bp)
		}
	}
	return out, nil
}

func impact(n int64) *decimal.Decimal {
	d := decimal.NewFromInt(n)
	return &d
}

func intPtr(v int) *int { return &v }

var ada = &domain.BusinessPartner{BusinessPartner: "BP1", FirstName: "Ada", LastName: "Lovelace"}

func TestAnnotate(t *testing.T) {
	tests := []struct {
		name     string
		risk     domain.Risk
		wantCrit int
		wantPrio *int
	}{
		{"HighImpactHighPrio", domain.Risk{Impact: impact(150000), PrioCode: "H"}, 1, intPtr(1)},
		{"ThresholdIsInclusive", domain.Risk{Impact: impact(100000), PrioCode: "M"}, 1, intPtr(2)},
		{"LowImpactLowPrio", domain.Risk{Impact: impact(5000), PrioCode: "L"}, 2, intPtr(3)},
		{"UnknownPrio", domain.Risk{Impact: impact(200000), PrioCode: "X"}, 1, nil},
		{"LowercasePrioIsUnknown", domain.Risk{Impact: impact(1), PrioCode: "h"}, 2, nil},
		{"NoImpactNoPrio", domain.Risk{}, 2, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.risk
			Annotate(&r)
			assert.Equal(t, tt.wantCrit, r.Criticality)
			assert.Equal(t, tt.wantPrio, r.PrioCriticality)
		})
	}

	t.Run("ClearsStalePrioCriticality", func(t *testing.T) {
		r := &domain.Risk{PrioCode: "X", PrioCriticality: intPtr(1)}
		Annotate(r)
		assert.Nil(t, r.PrioCriticality)
	})

	t.Run("SkipsNil", func(t *testing.T) {
		assert.NotPanics(t, func() { Annotate(nil, &domain.Risk{}) })
	})
}

func TestRemovePartnerExpand(t *testing.T) {
	t.Run("NoProjection", func(t *testing.T) {
		q := query.From(domain.EntityRisks)
		assert.False(t, RemovePartnerExpand(q))
		assert.Nil(t, q.Columns)
	})

	t.Run("NoPartnerExpand", func(t *testing.T) {
		q := query.From(domain.EntityRisks).Select(query.Ref("title"), query.Expand("owner"))
		assert.False(t, RemovePartnerExpand(q))
		assert.Len(t, q.Columns, 2)
	})

	t.Run("PlainBpRefIsNotAnExpand", func(t *testing.T) {
		q := query.From(domain.EntityRisks).Select(query.Ref("bp"))
		assert.False(t, RemovePartnerExpand(q))
	})

	t.Run("AddsForeignKey", func(t *testing.T) {
		q := query.From(domain.EntityRisks).Select(query.Ref("title"), query.Expand("bp"))
		require.True(t, RemovePartnerExpand(q))
		assert.Equal(t, []query.Column{query.Ref("title"), query.Ref("bp_BusinessPartner")}, q.Columns)
	})

	t.Run("KeepsExistingForeignKey", func(t *testing.T) {
		q := query.From(domain.EntityRisks).Select(query.Ref("bp_BusinessPartner"), query.Expand("bp"), query.Ref("title"))
		require.True(t, RemovePartnerExpand(q))
		assert.Equal(t, []query.Column{query.Ref("bp_BusinessPartner"), query.Ref("title")}, q.Columns)
	})

	t.Run("OnlyFirstExpandRemoved", func(t *testing.T) {
		q := query.From(domain.EntityRisks).Select(query.Expand("bp"), query.Expand("bp", query.Ref("FirstName")))
		require.True(t, RemovePartnerExpand(q))
		require.Len(t, q.Columns, 2)
		assert.True(t, q.Columns[0].IsExpand())
		assert.Equal(t, query.Ref("bp_BusinessPartner"), q.Columns[1])
	})
}

func TestReadRisks(t *testing.T) {
	ctx := context.Background()

	t.Run("ExpandedReadJoinsPartners", func(t *testing.T) {
		store := &fakeStore{risks: []domain.Risk{
			{ID: "r1", Impact: impact(150000), PrioCode: "H", BusinessPartnerID: "BP1"},
			{ID: "r2", Impact: impact(5000), PrioCode: "L", BusinessPartnerID: "BP2"},
			{ID: "r3", Impact: impact(10), PrioCode: "X", BusinessPartnerID: "BP1"},
			{ID: "r4", Impact: impact(10), PrioCode: "M"},
		}}
		gw := &fakeGateway{partners: []*domain.BusinessPartner{ada}}
		svc := New(store, gw, "secret", nil)

		q := query.From(domain.EntityRisks).Select(query.Ref("title"), query.Ref("impact"), query.Expand("bp"))
		risks, err := svc.ReadRisks(ctx, q)
		require.NoError(t, err)
		require.Len(t, risks, 4)

		// rewritten query reached the store, caller's query did not change
		require.Len(t, store.executed, 1)
		executed := store.executed[0]
		assert.Equal(t, -1, executed.FindExpand("bp"))
		assert.True(t, executed.HasRef("bp_BusinessPartner"))
		assert.Equal(t, 2, q.FindExpand("bp"))

		// one batched lookup without the name filter
		require.Len(t, gw.calls, 1)
		call := gw.calls[0]
		assert.Equal(t, domain.EntityBusinessPartners, call.q.From)
		assert.Equal(t, []query.Predicate{query.In("BusinessPartner", "BP1", "BP2")}, call.q.Where)
		assert.Equal(t, map[string]string{"apikey": "secret"}, call.headers)

		r1 := risks[0]
		assert.Equal(t, 1, r1.Criticality)
		assert.Equal(t, intPtr(1), r1.PrioCriticality)
		assert.Equal(t, ada, r1.BusinessPartner)

		r2 := risks[1]
		assert.Equal(t, 2, r2.Criticality)
		assert.Equal(t, intPtr(3), r2.PrioCriticality)
		assert.Nil(t, r2.BusinessPartner)

		r3 := risks[2]
		assert.Nil(t, r3.PrioCriticality)
		assert.Equal(t, 2, r3.Criticality)
		assert.Same(t, ada, r3.BusinessPartner)

		assert.Nil(t, risks[3].BusinessPartner)
	})

	t.Run("PassThroughSkipsGateway", func(t *testing.T) {
		store := &fakeStore{risks: []domain.Risk{{ID: "r1", Impact: impact(150000), BusinessPartnerID: "BP1"}}}
		gw := &fakeGateway{partners: []*domain.BusinessPartner{ada}}
		svc := New(store, gw, "secret", nil)

		for _, q := range []*query.Select{
			query.From(domain.EntityRisks),
			query.From(domain.EntityRisks).Select(query.Ref("title")),
		} {
			risks, err := svc.ReadRisks(ctx, q)
			require.NoError(t, err)
			require.Len(t, risks, 1)
			assert.Nil(t, risks[0].BusinessPartner)
			assert.Equal(t, 1, risks[0].Criticality)
		}
		assert.Empty(t, gw.calls)
		assert.Nil(t, store.executed[0].Columns)
	})

	t.Run("NoForeignKeysSkipsGateway", func(t *testing.T) {
		store := &fakeStore{risks: []domain.Risk{{ID: "r1"}}}
		gw := &fakeGateway{}
		svc := New(store, gw, "", nil)

		risks, err := svc.ReadRisks(ctx, query.From(domain.EntityRisks).Select(query.Expand("bp")))
		require.NoError(t, err)
		require.Len(t, risks, 1)
		assert.Empty(t, gw.calls)
	})

	t.Run("EmptyResult", func(t *testing.T) {
		svc := New(&fakeStore{}, &fakeGateway{}, "", nil)
		risks, err := svc.ReadRisks(ctx, query.From(domain.EntityRisks).Select(query.Expand("bp")))
		require.NoError(t, err)
		assert.NotNil(t, risks)
		assert.Empty(t, risks)
	})

	t.Run("StoreErrorPropagates", func(t *testing.T) {
		boom := errors.New("disk full")
		gw := &fakeGateway{}
		svc := New(&fakeStore{err: boom}, gw, "", nil)

		_, err := svc.ReadRisks(ctx, query.From(domain.EntityRisks).Select(query.Expand("bp")))
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, gw.calls)
	})

	t.Run("GatewayErrorPropagates", func(t *testing.T) {
		boom := errors.New("upstream down")
		store := &fakeStore{risks: []domain.Risk{{ID: "r1", BusinessPartnerID: "BP1"}}}
		svc := New(store, &fakeGateway{err: boom}, "", nil)

		_, err := svc.ReadRisks(ctx, query.From(domain.EntityRisks).Select(query.Expand("bp")))
		assert.ErrorIs(t, err, boom)
	})
}

func TestReadRisk(t *testing.T) {
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		store := &fakeStore{risks: []domain.Risk{{ID: "r1", Impact: impact(150000), PrioCode: "H", BusinessPartnerID: "BP1"}}}
		svc := New(store, &fakeGateway{partners: []*domain.BusinessPartner{ada}}, "k", nil)

		risk, err := svc.ReadRisk(ctx, "r1", query.From(domain.EntityRisks).Select(query.Ref("ID"), query.Expand("bp")))
		require.NoError(t, err)
		assert.Equal(t, 1, risk.Criticality)
		assert.Equal(t, intPtr(1), risk.PrioCriticality)
		assert.Equal(t, ada, risk.BusinessPartner)

		executed := store.executed[0]
		assert.Equal(t, []query.Predicate{query.Eq("ID", "r1")}, executed.Where)
		assert.Equal(t, 1, executed.Limit)
	})

	t.Run("NilQuery", func(t *testing.T) {
		store := &fakeStore{risks: []domain.Risk{{ID: "r1"}}}
		svc := New(store, &fakeGateway{}, "", nil)

		risk, err := svc.ReadRisk(ctx, "r1", nil)
		require.NoError(t, err)
		assert.Equal(t, "r1", risk.ID)
		assert.Nil(t, store.executed[0].Columns)
	})

	t.Run("NotFound", func(t *testing.T) {
		svc := New(&fakeStore{}, &fakeGateway{}, "", nil)
		_, err := svc.ReadRisk(ctx, "missing", nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestReadBusinessPartners(t *testing.T) {
	gw := &fakeGateway{partners: []*domain.BusinessPartner{ada}}
	svc := New(&fakeStore{}, gw, "secret", nil)

	q := query.From(domain.EntityBusinessPartners).And(query.Eq("Industry", "Y001"))
	q.Limit = 10

	got, err := svc.ReadBusinessPartners(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []*domain.BusinessPartner{ada}, got)

	require.Len(t, gw.calls, 1)
	call := gw.calls[0]
	assert.Equal(t, []query.Predicate{
		query.Eq("Industry", "Y001"),
		query.Ne("LastName", ""),
		query.Ne("FirstName", ""),
	}, call.q.Where)
	assert.Equal(t, 10, call.q.Limit)
	assert.Equal(t, "secret", call.headers["apikey"])

	// caller's query is left alone
	assert.Len(t, q.Where, 1)
}
