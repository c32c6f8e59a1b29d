package kafka

import (
	"context"
	"testing"
)

// Shutdown arrives twice in the binaries: an explicit Close followed by the
// root context being cancelled. Both orderings must drain and stop exactly
// once, whatever the race between the two signals resolves to.
func TestBusShutdownCloseThenCancel(t *testing.T) {
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		b := NewBus([]string{"localhost:0"}, 8, nil)
		b.Start(ctx)
		b.Close()
		cancel()
		b.WaitClosed()
	}
}

func TestBusShutdownCancelThenClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		b := NewBus([]string{"localhost:0"}, 8, nil)
		b.Start(ctx)
		cancel()
		b.Close()
		b.WaitClosed()
	}
}
