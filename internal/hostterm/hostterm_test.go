package hostterm

import (
	"testing"
	"time"

	"github.com/kernellab/pmk/internal/terminal"
)

type recordingKeys struct {
	codes []byte
}

func (r *recordingKeys) PostScanCode(code byte) {
	r.codes = append(r.codes, code)
}

func TestPumpOutputStopsOnStop(t *testing.T) {
	mux := terminal.NewMultiplexer()
	h := New(&recordingKeys{}, mux)

	go h.pumpOutput()
	h.stopOnce.Do(func() { close(h.stop) })

	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("pumpOutput never returned after stop was closed")
	}
}
