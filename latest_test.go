package visnav

import (
	"github.com/stretchr/testify/assert"
	"math"
	"sync"
	"testing"
)

func TestLatestKeepsMostRecent(t *testing.T) {
	slot := NewLatest[int]()

	v, seq := slot.Snapshot()
	assert.Equal(t, 0, v)
	assert.Equal(t, uint64(0), seq)

	for i := 1; i <= 5; i++ {
		slot.Put(i)
	}

	v, seq = slot.Snapshot()
	assert.Equal(t, 5, v)
	assert.Equal(t, uint64(5), seq)

	// only a single signal is pending regardless of the number of puts
	<-slot.Ready()
	select {
	case <-slot.Ready():
		t.Fatal("expected no second pending signal")
	default:
	}
}

func TestLatestConcurrentProducer(t *testing.T) {
	slot := NewLatest[int]()

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		for i := 1; i <= 1000; i++ {
			slot.Put(i)
		}
	}()

	wg.Wait()

	v, seq := slot.Snapshot()
	assert.Equal(t, 1000, v)
	assert.Equal(t, uint64(1000), seq)
}

func TestLatestPutAfterClose(t *testing.T) {
	slot := NewLatest[string]()
	slot.Put("a")
	slot.Close()
	slot.Close()

	assert.NotPanics(t, func() { slot.Put("b") })

	v, _ := slot.Snapshot()
	assert.Equal(t, "a", v)
}

func TestClampRejectsNaN(t *testing.T) {
	sig := ControlSignal{Throttle: 2, Steering: -3, Omega: math.NaN()}

	got := sig.Clamped()
	assert.Equal(t, ControlSignal{Throttle: 1, Steering: -1, Omega: 0}, got)
}
