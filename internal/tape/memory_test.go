package tape

import (
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInteraction(method, url string, status int, body string) Interaction {
	return Interaction{
		Request: Request{Method: method, URL: url},
		Response: Response{
			Status:  status,
			Headers: http.Header{"Content-Type": {"application/json"}},
			Body:    body,
		},
	}
}

func TestMemoryTapePlayHit(t *testing.T) {
	t.Parallel()

	tp := NewMemoryTape("catalog", []Interaction{
		sampleInteraction("GET", "http://origin.example/widgets", 200, `[{"id":1}]`),
	}, false)

	resp, ok := tp.Play(&Request{Method: "GET", URL: "http://origin.example/widgets"})
	require.True(t, ok)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, `[{"id":1}]`, resp.Body)
	assert.Equal(t, "application/json", resp.Headers.Get("Content-Type"))
}

func TestMemoryTapePlayMethodCaseInsensitive(t *testing.T) {
	t.Parallel()

	tp := NewMemoryTape("catalog", []Interaction{
		sampleInteraction("get", "http://origin.example/widgets", 200, "ok"),
	}, false)

	_, ok := tp.Play(&Request{Method: "GET", URL: "http://origin.example/widgets"})
	assert.True(t, ok)
}

func TestMemoryTapePlayMiss(t *testing.T) {
	t.Parallel()

	tp := NewMemoryTape("catalog", []Interaction{
		sampleInteraction("GET", "http://origin.example/widgets", 200, "ok"),
	}, false)

	tests := []struct {
		name  string
		probe Request
	}{
		{name: "different method", probe: Request{Method: "POST", URL: "http://origin.example/widgets"}},
		{name: "different url", probe: Request{Method: "GET", URL: "http://origin.example/gadgets"}},
		{name: "url is exact match", probe: Request{Method: "GET", URL: "http://origin.example/widgets?page=2"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, ok := tp.Play(&tt.probe)
			assert.False(t, ok)
			assert.Nil(t, resp)
		})
	}
}

func TestMemoryTapePlayFirstMatchWins(t *testing.T) {
	t.Parallel()

	tp := NewMemoryTape("catalog", []Interaction{
		sampleInteraction("GET", "http://origin.example/widgets", 200, "first"),
		sampleInteraction("GET", "http://origin.example/widgets", 200, "second"),
	}, false)

	resp, ok := tp.Play(&Request{Method: "GET", URL: "http://origin.example/widgets"})
	require.True(t, ok)
	assert.Equal(t, "first", resp.Body)
}

func TestMemoryTapePlayIsRepeatable(t *testing.T) {
	t.Parallel()

	tp := NewMemoryTape("catalog", []Interaction{
		sampleInteraction("GET", "http://origin.example/widgets", 200, "ok"),
	}, false)

	for i := 0; i < 3; i++ {
		_, ok := tp.Play(&Request{Method: "GET", URL: "http://origin.example/widgets"})
		require.True(t, ok)
	}
}

func TestMemoryTapePlayReturnsClone(t *testing.T) {
	t.Parallel()

	tp := NewMemoryTape("catalog", []Interaction{
		sampleInteraction("GET", "http://origin.example/widgets", 200, "ok"),
	}, false)

	resp, ok := tp.Play(&Request{Method: "GET", URL: "http://origin.example/widgets"})
	require.True(t, ok)
	resp.Headers.Set("Content-Type", "text/plain")
	resp.Status = 500

	again, ok := tp.Play(&Request{Method: "GET", URL: "http://origin.example/widgets"})
	require.True(t, ok)
	assert.Equal(t, 200, again.Status)
	assert.Equal(t, "application/json", again.Headers.Get("Content-Type"))
}

func TestMemoryTapeRecord(t *testing.T) {
	t.Parallel()

	tp := NewMemoryTape("session", nil, false)
	assert.False(t, tp.Dirty())

	tp.Record(
		&Request{Method: "GET", URL: "http://origin.example/widgets"},
		&Response{Status: 200, Body: `{"id":1}`},
	)

	assert.True(t, tp.Dirty())

	interactions := tp.Interactions()
	require.Len(t, interactions, 1)
	assert.NotEmpty(t, interactions[0].ID)
	assert.False(t, interactions[0].Recorded.IsZero())
	assert.Equal(t, "GET", interactions[0].Request.Method)

	// The recording replays.
	resp, ok := tp.Play(&Request{Method: "GET", URL: "http://origin.example/widgets"})
	require.True(t, ok)
	assert.Equal(t, `{"id":1}`, resp.Body)
}

func TestMemoryTapeReadOnlyIgnoresRecord(t *testing.T) {
	t.Parallel()

	tp := NewMemoryTape("frozen", nil, true)
	tp.Record(
		&Request{Method: "GET", URL: "http://origin.example/widgets"},
		&Response{Status: 200},
	)

	assert.Empty(t, tp.Interactions())
	assert.False(t, tp.Dirty())
	assert.True(t, tp.ReadOnly())
}

func TestMemoryTapeConcurrentPlayAndRecord(t *testing.T) {
	t.Parallel()

	tp := NewMemoryTape("busy", []Interaction{
		sampleInteraction("GET", "http://origin.example/seed", 200, "ok"),
	}, false)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tp.Play(&Request{Method: "GET", URL: "http://origin.example/seed"})
		}()
		go func() {
			defer wg.Done()
			tp.Record(
				&Request{Method: "POST", URL: "http://origin.example/items"},
				&Response{Status: 201},
			)
		}()
	}
	wg.Wait()

	assert.Len(t, tp.Interactions(), 17)
}
