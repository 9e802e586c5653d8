package yahoo

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/require"
)

// Replays a recorded Yahoo quote and chart exchange. Skips when the cassette
// is absent unless RECORD_CASSETTES=1.
func TestProvider_Recorded(t *testing.T) {
	cassettePath := filepath.Join("testdata", "cassettes", "yahoo_nvda")
	if _, err := os.Stat(cassettePath + ".yaml"); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s", cassettePath)
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(cassettePath), 0o755))
	}

	r, err := recorder.New(cassettePath)
	require.NoError(t, err)
	defer func() { _ = r.Stop() }()
	p := NewProvider(WithTimeout(20*time.Second), WithHTTPClient(&http.Client{Transport: r}))
	ctx := context.Background()

	q, err := p.Quote(ctx, "NVDA")
	require.NoError(t, err)
	require.Greater(t, q.Price, 0.0)

	end := time.Now()
	bars, err := p.History(ctx, "NVDA", end.AddDate(0, 0, -30), end)
	require.NoError(t, err)
	require.NotEmpty(t, bars)
}
