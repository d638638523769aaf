package configcell

import (
	"sync"
	"testing"

	"github.com/lkarlslund/claude-gateway/pkg/gwconfig"
	"github.com/stretchr/testify/require"
)

func snapWithModel(model string) *gwconfig.Snapshot {
	return &gwconfig.Snapshot{
		Upstreams: []gwconfig.Upstream{{Endpoint: "https://x", Model: model, APIKeys: []string{"k"}, Dialect: gwconfig.DialectAnthropic}},
	}
}

func TestCellLoadStoreNeverTorn(t *testing.T) {
	cell := New(snapWithModel("a"))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					snap := cell.Load()
					model := snap.Upstreams[0].Model
					require.True(t, model == "a" || model == "b")
				}
			}
		}()
	}

	cell.Store(snapWithModel("b"))
	close(stop)
	wg.Wait()

	require.Equal(t, "b", cell.Load().Upstreams[0].Model)
}
