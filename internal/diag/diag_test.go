package diag

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	d := Warningf("integer %s", "overflow").
		Primary(Location{Begin: 3, End: 7}).
		Note("row %d", 2).
		Done()
	assert.Equal(t, SeverityWarning, d.Severity)
	assert.Equal(t, "integer overflow", d.Message)
	assert.Equal(t, Location{Begin: 3, End: 7}, d.Primary)
	require.Len(t, d.Notes, 1)
	assert.Equal(t, "row 2", d.Notes[0])
}

func TestSinkDeduplicates(t *testing.T) {
	sink := NewSink(nil)
	for range 5 {
		Warningf("dup").Primary(Location{Begin: 1, End: 2}).Emit(sink)
	}
	assert.Len(t, sink.Diagnostics(), 1)
	// A different location is a different diagnostic.
	Warningf("dup").Primary(Location{Begin: 9, End: 10}).Emit(sink)
	assert.Len(t, sink.Diagnostics(), 2)
	// A different severity is a different diagnostic.
	Errorf("dup").Primary(Location{Begin: 1, End: 2}).Emit(sink)
	assert.Len(t, sink.Diagnostics(), 3)
}

func TestSinkResetBatchOpensNewWindow(t *testing.T) {
	sink := NewSink(nil)
	Warningf("x").Emit(sink)
	sink.ResetBatch()
	Warningf("x").Emit(sink)
	assert.Len(t, sink.Diagnostics(), 2)
}

func TestSinkFailed(t *testing.T) {
	sink := NewSink(nil)
	Warningf("w").Emit(sink)
	assert.False(t, sink.Failed())
	Errorf("e").Emit(sink)
	assert.True(t, sink.Failed())
}

func TestSinkConcurrentEmit(t *testing.T) {
	sink := NewSink(nil)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 100 {
				Warningf("worker %d message %d", i, j).Emit(sink)
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, sink.Diagnostics(), 800)
}

func TestUnknownLocation(t *testing.T) {
	assert.False(t, UnknownLocation.Known())
	assert.True(t, Location{Begin: 0, End: 4}.Known())
	assert.Equal(t, "<unknown>", UnknownLocation.String())
}
