package logging

import "testing"

func TestNew(t *testing.T) {
	for _, debug := range []bool{false, true} {
		log, err := New("test", debug)
		if err != nil {
			t.Fatalf("New(debug=%v): %v", debug, err)
		}
		if got := log.Core().Enabled(-1); got != debug {
			t.Fatalf("debug=%v: debug level enabled=%v", debug, got)
		}
		_ = log.Sync()
	}
}
