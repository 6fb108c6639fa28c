package supervisor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// flaky fails on its first run and then runs until canceled.
type flaky struct {
	runs      atomic.Int32
	restarted chan struct{}
}

func (f *flaky) Serve(ctx context.Context) error {
	if f.runs.Add(1) == 1 {
		return errors.New("boom")
	}
	close(f.restarted)
	<-ctx.Done()
	return ctx.Err()
}

func (f *flaky) String() string { return "flaky" }

func TestRestartIsLogged(t *testing.T) {
	var out syncBuffer
	log := zerolog.New(&out)
	sup := New("test", log, Config{ShutdownTimeout: time.Second})

	svc := &flaky{restarted: make(chan struct{})}
	sup.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := sup.ServeBackground(ctx)

	select {
	case <-svc.restarted:
	case <-time.After(5 * time.Second):
		t.Fatal("service was not restarted")
	}
	cancel()
	<-done

	logged := out.String()
	if !strings.Contains(logged, `"level":"error"`) {
		t.Errorf("termination not logged at error level: %s", logged)
	}
	if !strings.Contains(logged, "flaky") || !strings.Contains(logged, "boom") {
		t.Errorf("log missing service name or error: %s", logged)
	}
}
