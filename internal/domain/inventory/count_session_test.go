package inventory

import (
	"errors"
	"testing"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedSession(t *testing.T) *CountSession {
	t.Helper()
	s, err := NewCountSession(uuid.New(), uuid.New(), uuid.New(), "cycle count")
	require.NoError(t, err)
	require.NoError(t, s.Start())
	return s
}

func TestCountSession_Lifecycle(t *testing.T) {
	s, err := NewCountSession(uuid.New(), uuid.New(), uuid.New(), "")
	require.NoError(t, err)
	assert.Equal(t, CountSessionStatusDraft, s.Status)

	_, err = s.RecordLine(CountLineInput{VariantID: uuid.New(), CountedQty: dec(1)})
	assert.Error(t, err, "draft sessions do not accept lines")

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())
	assert.Equal(t, CountSessionStatusInProgress, s.Status)
}

func TestCountSession_RecordLineReplaces(t *testing.T) {
	s := startedSession(t)
	variant := uuid.New()

	_, err := s.RecordLine(CountLineInput{VariantID: variant, ExpectedQty: dec(10), CountedQty: dec(7)})
	require.NoError(t, err)
	line, err := s.RecordLine(CountLineInput{VariantID: variant, ExpectedQty: dec(10), CountedQty: dec(9)})
	require.NoError(t, err)

	require.Len(t, s.Lines, 1)
	assert.True(t, line.CountedQty.Equal(dec(9)))
	assert.True(t, line.Diff.Equal(dec(-1)))

	_, err = s.RecordLine(CountLineInput{VariantID: variant, LotID: uuid.New(), ExpectedQty: dec(1), CountedQty: dec(1)})
	require.NoError(t, err)
	assert.Len(t, s.Lines, 2)

	_, err = s.RecordLine(CountLineInput{VariantID: variant, CountedQty: decimal.NewFromInt(-1)})
	assert.Error(t, err)

	_, err = s.RecordLine(CountLineInput{VariantID: variant, CountedQty: decimal.RequireFromString("2.00001")})
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	assert.True(t, s.Lines[0].CountedQty.Equal(dec(9)), "rejected line leaves the recorded count alone")
}

func TestCountSession_CloseIsDeterministicAndTerminal(t *testing.T) {
	s := startedSession(t)
	variantA, variantB := uuid.New(), uuid.New()
	_, _ = s.RecordLine(CountLineInput{VariantID: variantA, ExpectedQty: dec(10), CountedQty: dec(7)})
	_, _ = s.RecordLine(CountLineInput{VariantID: variantB, ExpectedQty: dec(5), CountedQty: dec(5)})

	adjust, err := s.Close(uuid.New())
	require.NoError(t, err)

	require.Len(t, adjust, 1)
	assert.Equal(t, variantA, adjust[0].VariantID)
	assert.True(t, adjust[0].Diff.Equal(dec(-3)))
	assert.Equal(t, "expected=10 counted=7 diff=-3", adjust[0].AdjustmentNote())
	assert.True(t, s.IsClosed())
	assert.NotNil(t, s.ClosedAt)

	_, err = s.Close(uuid.New())
	assert.True(t, errors.Is(err, shared.ErrSessionAlreadyClosed))

	_, err = s.RecordLine(CountLineInput{VariantID: variantA, CountedQty: dec(1)})
	assert.True(t, errors.Is(err, shared.ErrSessionAlreadyClosed))
}
