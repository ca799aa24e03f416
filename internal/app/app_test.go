package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyalert/internal/config"
)

func testApp(mode string) *App {
	cfg := config.Defaults()
	cfg.Mode = mode
	return New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunRejectsUnknownModeBeforeWiring(t *testing.T) {
	a := testApp("trade")
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported mode "trade"`)
	assert.Empty(t, a.closers)
}

func TestEveryValidModeHasARunner(t *testing.T) {
	for _, mode := range []string{"full", "monitor", "bot"} {
		assert.Contains(t, modes, mode)
	}
}

func TestCloseRunsClosersOnceInReverse(t *testing.T) {
	a := testApp("full")
	var order []int
	a.closers = []func(){
		func() { order = append(order, 1) },
		func() { order = append(order, 2) },
	}

	a.Close()
	a.Close()
	assert.Equal(t, []int{2, 1}, order)
}
