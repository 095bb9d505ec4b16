package audit

import (
	"context"
	"os"
	"testing"
	"time"
)

func requireDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("BRIDGE_TEST_AUDIT_DSN")
	if dsn == "" {
		t.Skip("BRIDGE_TEST_AUDIT_DSN not set, skipping Postgres-backed audit test")
	}
	return dsn
}

func TestAuditLogFlushesOnSize(t *testing.T) {
	dsn := requireDSN(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l, err := Open(ctx, Config{DSN: dsn, BatchSize: 2, FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Shutdown(5 * time.Second)

	l.Enqueue(&Record{RequestID: "r1", ExecutorID: "e1", Command: "execute", Success: true, At: time.Now()})
	l.Enqueue(&Record{RequestID: "r2", ExecutorID: "e1", Command: "execute", Success: true, At: time.Now()})

	time.Sleep(200 * time.Millisecond)
}

func TestAuditLogDropsOnFullBuffer(t *testing.T) {
	dsn := requireDSN(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l, err := Open(ctx, Config{DSN: dsn, BatchSize: 1000, BufferSize: 1, FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Shutdown(5 * time.Second)

	for i := 0; i < 10; i++ {
		l.Enqueue(&Record{RequestID: "dup", ExecutorID: "e1", Command: "execute", Success: true, At: time.Now()})
	}
}
