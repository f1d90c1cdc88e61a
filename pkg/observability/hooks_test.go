package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	// Document hooks
	d := NoopDocumentHooks{}
	d.OnCommit("canvas-1", 2, 1, false)
	d.OnRollback("canvas-1", errors.New("boom"))
	d.OnObserverPanic("canvas-1", "mirror", "boom")

	// Layout hooks
	l := NoopLayoutHooks{}
	l.OnLayoutStart(ctx, "full", 100)
	l.OnLayoutComplete(ctx, "full", time.Second, nil)
	l.OnCycleBroken(ctx, 1)

	// Cache hooks
	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "layout")
	c.OnCacheMiss(ctx, "layout")
	c.OnCacheSet(ctx, "layout", 1024)

	// Transport hooks
	tr := NoopTransportHooks{}
	tr.OnPublish(ctx, "canvas-1", 128)
	tr.OnReceive(ctx, "canvas-1", 128)
	tr.OnTransportError(ctx, "canvas-1", nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()

	if _, ok := Document().(NoopDocumentHooks); !ok {
		t.Error("Document() should return NoopDocumentHooks by default")
	}
	if _, ok := Layout().(NoopLayoutHooks); !ok {
		t.Error("Layout() should return NoopLayoutHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := Transport().(NoopTransportHooks); !ok {
		t.Error("Transport() should return NoopTransportHooks by default")
	}

	customDocument := &testDocumentHooks{}
	SetDocumentHooks(customDocument)
	if Document() != customDocument {
		t.Error("SetDocumentHooks should set custom hooks")
	}

	customLayout := &testLayoutHooks{}
	SetLayoutHooks(customLayout)
	if Layout() != customLayout {
		t.Error("SetLayoutHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customTransport := &testTransportHooks{}
	SetTransportHooks(customTransport)
	if Transport() != customTransport {
		t.Error("SetTransportHooks should set custom hooks")
	}

	Reset()
	if _, ok := Layout().(NoopLayoutHooks); !ok {
		t.Error("Reset() should restore NoopLayoutHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()

	custom := &testLayoutHooks{}
	SetLayoutHooks(custom)

	SetLayoutHooks(nil)

	if Layout() != custom {
		t.Error("SetLayoutHooks(nil) should be ignored")
	}

	Reset()
}

// Test implementations
type testDocumentHooks struct{ NoopDocumentHooks }
type testLayoutHooks struct{ NoopLayoutHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testTransportHooks struct{ NoopTransportHooks }
