package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher(t *testing.T) {
	ada := map[string]any{"BusinessPartner": "BP1", "FirstName": "Ada", "LastName": "Lovelace", "Rank": int64(3)}
	blank := map[string]any{"BusinessPartner": "BP2", "FirstName": "", "LastName": "Nobody", "Rank": int64(7)}

	tests := []struct {
		name  string
		preds []Predicate
		ada   bool
		blank bool
	}{
		{"Empty", nil, true, true},
		{"NonEmptyNames", []Predicate{Ne("LastName", ""), Ne("FirstName", "")}, true, false},
		{"In", []Predicate{In("BusinessPartner", "BP2", "BP9")}, false, true},
		{"IntCompare", []Predicate{{Field: "Rank", Op: OpGt, Value: int64(5)}}, false, true},
		{"DoubleCompare", []Predicate{{Field: "Rank", Op: OpLe, Value: 3.0}}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := CompileMatcher(tt.preds)
			require.NoError(t, err)

			got, err := m.Match(ada)
			require.NoError(t, err)
			assert.Equal(t, tt.ada, got, m.String())

			got, err = m.Match(blank)
			require.NoError(t, err)
			assert.Equal(t, tt.blank, got, m.String())
		})
	}
}

func TestMatcherExpression(t *testing.T) {
	m, err := CompileMatcher([]Predicate{Ne("LastName", ""), In("BusinessPartner", "a\"b")})
	require.NoError(t, err)
	assert.Equal(t, `r.LastName != "" && r.BusinessPartner in ["a\"b"]`, m.String())
}

func TestMatcherMissingField(t *testing.T) {
	m, err := CompileMatcher([]Predicate{Eq("Missing", "x")})
	require.NoError(t, err)

	_, err = m.Match(map[string]any{"LastName": "x"})
	assert.Error(t, err)
}

func TestCompileMatcherRejectsBadField(t *testing.T) {
	_, err := CompileMatcher([]Predicate{Eq("a) || (true", "x")})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}
