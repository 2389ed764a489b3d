package guide

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildKeyIgnoresSurroundingWhitespace(t *testing.T) {
	assert.Equal(t, BuildKey("7", "Z"), BuildKey("  7  ", " Z "))
	assert.Equal(t, "7|Z", BuildKey("  7  ", " Z "))
}

func TestContextAndRecordShareKey(t *testing.T) {
	ctx := Context{NumeroGuia: " 123 ", Senha: "999"}
	rec := LookupRecord{NumeroGuia: "123", Senha: " 999 ", ValorGlosa: decimal.NewFromFloat(10.5)}
	assert.Equal(t, "123|999", ctx.Key())
	assert.Equal(t, ctx.Key(), rec.Key())

	ix := Index{rec.Key(): rec}
	got, ok := ix.Lookup(ctx.Key())
	require.True(t, ok)
	assert.True(t, got.ValorGlosa.Equal(decimal.RequireFromString("10.5")))

	_, ok = ix.Lookup("nope|nope")
	assert.False(t, ok)
}

func TestLogConcurrentAppend(t *testing.T) {
	var l Log
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Append(StatusRecord{Seq: i})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, l.Len())

	snap := l.Snapshot()
	snap[0].Message = "mutated"
	assert.NotEqual(t, "mutated", l.Snapshot()[0].Message)
}

func TestStatusRecordClock(t *testing.T) {
	r := StatusRecord{CreatedAt: time.Date(2024, 5, 1, 13, 4, 5, 0, time.UTC)}
	assert.Equal(t, "13:04:05", r.Clock())
}
