package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type signalRecorder struct {
	mu      sync.Mutex
	signals []string
}

func (r *signalRecorder) record(name string) func() {
	return func() {
		r.mu.Lock()
		r.signals = append(r.signals, name)
		r.mu.Unlock()
	}
}

func (r *signalRecorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.signals...)
}

func TestDebounceEmitsOneStartPerBurst(t *testing.T) {
	rec := &signalRecorder{}
	d := newTypingDebouncer(50*time.Millisecond, rec.record("start"), rec.record("stop"))

	for i := 0; i < 10; i++ {
		d.Input()
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, []string{"start"}, rec.get())
	assert.True(t, d.Active())

	// silence past the window ends the burst with exactly one stop
	assert.Eventually(t, func() bool {
		sigs := rec.get()
		return len(sigs) == 2 && sigs[1] == "stop"
	}, time.Second, 10*time.Millisecond)
	assert.False(t, d.Active())

	// a new burst after the stop emits a fresh start
	d.Input()
	assert.Equal(t, []string{"start", "stop", "start"}, rec.get())
	d.Reset()
}

func TestDebounceFlushStopsImmediately(t *testing.T) {
	rec := &signalRecorder{}
	d := newTypingDebouncer(time.Hour, rec.record("start"), rec.record("stop"))

	d.Input()
	d.Flush()
	assert.Equal(t, []string{"start", "stop"}, rec.get())
	assert.False(t, d.Active())

	// flushing an idle debouncer emits nothing
	d.Flush()
	assert.Equal(t, []string{"start", "stop"}, rec.get())
}

func TestDebounceResetEmitsNothing(t *testing.T) {
	rec := &signalRecorder{}
	d := newTypingDebouncer(20*time.Millisecond, rec.record("start"), rec.record("stop"))

	d.Input()
	d.Reset()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []string{"start"}, rec.get())
}

func TestRoomCodeShape(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code := newRoomCode()
		assert.Len(t, code, roomCodeLength)
		for _, r := range code {
			assert.Contains(t, roomCodeChars, string(r))
		}
		seen[code] = struct{}{}
	}
	// codes are random enough not to collide in a small sample
	assert.Greater(t, len(seen), 90)
}
