package relational

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

var errDummy = errors.New("dummy")

func TestScopeWhere(t *testing.T) {
	sc := Scope{UserID: "u1"}
	clause, args := sc.where(3)
	require.Equal(t, "user_id = $3", clause)
	require.Equal(t, []any{"u1"}, args)

	sc = Scope{UserID: "u1", SpaceID: "s1"}
	clause, args = sc.where(3)
	require.Equal(t, "user_id = $3 AND space_id = $4", clause)
	require.Equal(t, []any{"u1", "s1"}, args)
}

func TestMetricOps(t *testing.T) {
	s := &Store{metric: MetricCosine}
	op, expr := s.metricOps()
	require.Equal(t, "<=>", op)
	require.Contains(t, expr, "1 - (embedding <=> $1::vector)")

	s.metric = MetricL2
	op, _ = s.metricOps()
	require.Equal(t, "<->", op)

	s.metric = MetricIP
	op, _ = s.metricOps()
	require.Equal(t, "<#>", op)
}

func TestOrDefault(t *testing.T) {
	require.Equal(t, "pending", orDefault("", "pending"))
	require.Equal(t, "ready", orDefault("ready", "pending"))
}

func TestIsUniqueViolation(t *testing.T) {
	require.False(t, isUniqueViolation(nil))
	require.False(t, isUniqueViolation(errDummy))
	require.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
}
