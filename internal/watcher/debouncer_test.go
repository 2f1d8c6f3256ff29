package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case events := <-d.Output():
		return events
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced events")
		return nil
	}
}

func TestDebouncer_Coalesces(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want Operation
	}{
		{"single event passes through", []Operation{OpCreate}, OpCreate},
		{"create then modify stays create", []Operation{OpCreate, OpModify, OpModify}, OpCreate},
		{"create then delete is delete", []Operation{OpCreate, OpDelete}, OpDelete},
		{"modify then delete is delete", []Operation{OpModify, OpDelete}, OpDelete},
		{"delete then create is modify", []Operation{OpDelete, OpCreate}, OpModify},
		{"rename then create is modify", []Operation{OpRename, OpCreate}, OpModify},
		{"repeated modify is modify", []Operation{OpModify, OpModify}, OpModify},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a debouncer with a short window
			d := NewDebouncer(30*time.Millisecond, nil)
			defer d.Stop()

			// When: events for one file arrive within the window
			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "/s/a.md", Operation: op, Timestamp: time.Now()})
			}

			// Then: one merged event comes out
			events := receive(t, d)
			require.Len(t, events, 1)
			assert.Equal(t, "/s/a.md", events[0].Path)
			assert.Equal(t, tt.want, events[0].Operation)
		})
	}
}

func TestDebouncer_DifferentFiles_SortedBatch(t *testing.T) {
	// Given: a debouncer
	d := NewDebouncer(30*time.Millisecond, nil)
	defer d.Stop()

	// When: events for different files are added
	d.Add(FileEvent{Path: "/s/c.md", Operation: OpDelete})
	d.Add(FileEvent{Path: "/s/a.md", Operation: OpCreate})
	d.Add(FileEvent{Path: "/s/b.md", Operation: OpModify})

	// Then: one batch holds all of them, ordered by path
	events := receive(t, d)
	require.Len(t, events, 3)
	assert.Equal(t, "/s/a.md", events[0].Path)
	assert.Equal(t, "/s/b.md", events[1].Path)
	assert.Equal(t, "/s/c.md", events[2].Path)
	assert.Equal(t, OpDelete, events[2].Operation)
}

func TestDebouncer_Stop_ClosesOutput(t *testing.T) {
	// Given: a debouncer with a pending event
	d := NewDebouncer(time.Hour, nil)
	d.Add(FileEvent{Path: "/s/a.md", Operation: OpCreate})

	// When: stopped twice
	d.Stop()
	d.Stop()

	// Then: the output closes without emitting, and later adds are ignored
	_, ok := <-d.Output()
	assert.False(t, ok)
	d.Add(FileEvent{Path: "/s/b.md", Operation: OpCreate})
}
