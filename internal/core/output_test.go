package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SerialShell/internal/model"
)

func TestOutputLogSequence(t *testing.T) {
	out := NewOutputLog()
	var (
		mu   sync.Mutex
		seen []uint64
	)
	out.OnEvent(func(ev model.Event) {
		mu.Lock()
		seen = append(seen, ev.Seq)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				out.Publish(model.Event{Kind: model.KindOutput, Text: "x"})
			}
		}()
	}
	wg.Wait()

	events := out.Events()
	require.Len(t, events, 1000)
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Seq)
		assert.False(t, ev.Time.IsZero())
	}
	// subscribers observe the same order the log stores
	require.Len(t, seen, 1000)
	for i, s := range seen {
		assert.Equal(t, uint64(i+1), s)
	}
}

func TestOutputLogSinceAndReset(t *testing.T) {
	out := NewOutputLog()
	for _, s := range []string{"a", "b", "c"} {
		out.Publish(model.Event{Text: s})
	}

	since := out.Since(1)
	require.Len(t, since, 2)
	assert.Equal(t, "b", since[0].Text)
	assert.Equal(t, "c", since[1].Text)
	assert.Empty(t, out.Since(3))
	assert.Len(t, out.Since(0), 3)

	out.Reset()
	assert.Equal(t, 0, out.Len())
	ev := out.Publish(model.Event{Text: "d"})
	assert.Equal(t, uint64(4), ev.Seq)
	assert.Equal(t, 1, out.Len())
}
