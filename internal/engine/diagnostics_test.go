package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlug(t *testing.T) {
	assert.Equal(t, "123_45", Slug(" 123/45 "))
	assert.Equal(t, "a-b_c", Slug("a-b_c"))
	assert.Equal(t, "Jos_Maria", Slug("José  Maria"))
	assert.Equal(t, "vazio", Slug("  "))
	assert.Equal(t, "vazio", Slug("///"))
}

func TestDiagnosticName(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 123456789, time.UTC)
	assert.Equal(t, "20240309-140507-123456-77-vazio.png", DiagnosticName(at, " 77 ", ""))
}

func TestWithScreenshot(t *testing.T) {
	assert.Equal(t, "msg", withScreenshot("msg", ""))
	assert.Equal(t, "msg | screenshot=a.png", withScreenshot("msg", "a.png"))
}

func TestRunJob(t *testing.T) {
	t.Run("connect failure still closes", func(t *testing.T) {
		conn := &fakeConn{connectErr: assert.AnError}
		h := newHarness(t, newFakeDriver(), nil, testConfig(t))
		err := RunJob(context.Background(), conn, h.e)
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, 1, conn.closed)
		assert.Equal(t, StateIdle, h.e.State())
	})
	t.Run("close error is joined", func(t *testing.T) {
		conn := &fakeConn{closeErr: errBoom}
		h := newHarness(t, newFakeDriver(gc("1", "A")), indexOf(gc("1", "A")), testConfig(t))
		err := RunJob(context.Background(), conn, h.e)
		require.Error(t, err)
		assert.ErrorIs(t, err, errBoom)
		assert.True(t, conn.connected)
		assert.Equal(t, StateFinished, h.e.State())
		assert.True(t, h.logged("Conexao com o Chrome estabelecida"))
	})
	t.Run("clean run", func(t *testing.T) {
		conn := &fakeConn{}
		h := newHarness(t, newFakeDriver(gc("1", "A")), indexOf(gc("1", "A")), testConfig(t))
		require.NoError(t, RunJob(context.Background(), conn, h.e))
		assert.Equal(t, 1, conn.closed)
	})
}
