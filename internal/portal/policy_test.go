package portal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/glosar/internal/resolve"
)

type call struct{ selector, value string }

type spyWriter struct {
	calls   []call
	failing map[string]error
}

func (s *spyWriter) fill(_ context.Context, selector, value string) error {
	if err := s.failing[selector]; err != nil {
		return err
	}
	s.calls = append(s.calls, call{selector, value})
	return nil
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNormalizeGlosaCode(t *testing.T) {
	assert.Equal(t, "3052", NormalizeGlosaCode("3052 - divergência"))
	assert.Equal(t, "1702", NormalizeGlosaCode(" 17.02 "))
	assert.Equal(t, "ABC", NormalizeGlosaCode(" ABC "))
	assert.Equal(t, "", NormalizeGlosaCode("   "))

	assert.True(t, IsSpecialGlosa("cod. 3052"))
	assert.True(t, IsSpecialGlosa("1702"))
	assert.False(t, IsSpecialGlosa("3030"))
	assert.False(t, IsSpecialGlosa(""))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "10,00", FormatValue(decimal.NewFromFloat(10.0)))
	assert.Equal(t, "1234,50", FormatValue(decimal.RequireFromString("1234.5")))
	assert.Equal(t, "0,01", FormatValue(decimal.RequireFromString("0.005")))
}

func TestJustificationTarget(t *testing.T) {
	s := DefaultSelectors()
	assert.Equal(t, s.Justificativa3052, JustificationTarget("3052", s))
	assert.Equal(t, s.Justificativa, JustificationTarget("3030", s))

	s.Justificativa3052 = " "
	assert.Equal(t, s.Justificativa, JustificationTarget("3052", s))
}

func TestWriteGuideSpecialCodesSkipValue(t *testing.T) {
	s := DefaultSelectors()
	for _, code := range []string{"1702", "3052 - divergencia"} {
		w := &spyWriter{}
		require.NoError(t, writeGuide(context.Background(), w, s, decimal.NewFromInt(10), "Texto", code, quiet))
		assert.Equal(t, []call{{s.Justificativa3052, "Texto"}}, w.calls, code)
	}
}

func TestWriteGuideOrdinaryCode(t *testing.T) {
	s := DefaultSelectors()
	w := &spyWriter{}
	require.NoError(t, writeGuide(context.Background(), w, s, decimal.NewFromFloat(10.0), "Texto", "3030", quiet))
	assert.Equal(t, []call{
		{s.Justificativa, "Texto"},
		{s.ValorGlosa, "10,00"},
	}, w.calls)
}

func TestWriteGuideFallsBackWhenDefaultUnavailable(t *testing.T) {
	s := DefaultSelectors()
	w := &spyWriter{failing: map[string]error{s.Justificativa: errors.New("campo principal indisponivel")}}
	require.NoError(t, writeGuide(context.Background(), w, s, decimal.NewFromInt(10), "Texto", "3030", quiet))
	assert.Equal(t, []call{{s.Justificativa3052, "Texto"}}, w.calls)
}

func TestWriteGuideNoFallbackTarget(t *testing.T) {
	s := DefaultSelectors()
	s.Justificativa3052 = ""
	boom := errors.New("campo principal indisponivel")
	w := &spyWriter{failing: map[string]error{s.Justificativa: boom}}
	err := writeGuide(context.Background(), w, s, decimal.NewFromInt(10), "Texto", "3030", quiet)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, w.calls)
}

func TestWriteGuideFallbackAlsoFails(t *testing.T) {
	s := DefaultSelectors()
	w := &spyWriter{failing: map[string]error{
		s.Justificativa:     errors.New("primary"),
		s.Justificativa3052: errors.New("secondary"),
	}}
	err := writeGuide(context.Background(), w, s, decimal.NewFromInt(10), "Texto", "", quiet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary")
	assert.Contains(t, err.Error(), "secondary")
}

func TestWriteGuideSessionLostIsNotMasked(t *testing.T) {
	s := DefaultSelectors()
	w := &spyWriter{failing: map[string]error{s.Justificativa: resolve.ErrSessionLost}}
	err := writeGuide(context.Background(), w, s, decimal.NewFromInt(10), "Texto", "3030", quiet)
	assert.ErrorIs(t, err, resolve.ErrSessionLost)
	assert.Empty(t, w.calls)
}
