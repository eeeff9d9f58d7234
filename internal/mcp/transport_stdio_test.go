package mcp

import (
	"testing"
	"time"

	"otto/internal/logging"
)

func TestStdioCloseReapsExitedChild(t *testing.T) {
	transport, err := NewStdioTransport("true", nil, nil, logging.Nop())
	if err != nil {
		t.Skipf("cannot spawn child process: %v", err)
	}
	st := transport.(*stdioTransport)

	// Wait for the read loop to observe the child's EOF.
	select {
	case <-st.done:
	case <-time.After(5 * time.Second):
		t.Fatal("read loop never saw the child exit")
	}

	if err := transport.Close(); err != nil {
		t.Fatal(err)
	}
	if st.cmd.ProcessState == nil {
		t.Fatal("child process not reaped")
	}

	// Close is idempotent.
	if err := transport.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestStdioCloseKillsRunningChild(t *testing.T) {
	transport, err := NewStdioTransport("sleep", []string{"60"}, nil, logging.Nop())
	if err != nil {
		t.Skipf("cannot spawn child process: %v", err)
	}
	st := transport.(*stdioTransport)

	// Close kills, waits for the read loop, and reaps. The error reflects the
	// kill signal and is not surfaced as a failure here.
	_ = transport.Close()
	if st.cmd.ProcessState == nil {
		t.Fatal("child process not reaped")
	}
}
