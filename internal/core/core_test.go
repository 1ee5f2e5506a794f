package core

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

type fakeModule struct {
	id          string
	startErr    error
	started     bool
	stopped     bool
	startOrder  *[]string
	stopOrder   *[]string
}

func (m *fakeModule) ModuleInfo() ModuleInfo { return ModuleInfo{ID: ModuleID(m.id)} }

func (m *fakeModule) Start() error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	if m.startOrder != nil {
		*m.startOrder = append(*m.startOrder, m.id)
	}
	return nil
}

func (m *fakeModule) Stop(context.Context) error {
	m.stopped = true
	if m.stopOrder != nil {
		*m.stopOrder = append(*m.stopOrder, m.id)
	}
	return nil
}

func newTestApp() *App {
	ctx := NewAppContext(slog.Default(), "")
	return NewApp(ctx)
}

func TestApp_StartStopOrder(t *testing.T) {
	app := newTestApp()
	var starts, stops []string

	a := &fakeModule{id: "a", startOrder: &starts, stopOrder: &stops}
	b := &fakeModule{id: "b", startOrder: &starts, stopOrder: &stops}
	app.AppendModule("a", a)
	app.AppendModule("b", b)

	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := starts; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("start order = %v, want [a b]", got)
	}

	app.Stop()
	if got := stops; len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("stop order = %v, want [b a]", got)
	}
}

func TestApp_StartFailureRollsBackAlreadyStarted(t *testing.T) {
	app := newTestApp()
	var stops []string

	a := &fakeModule{id: "a", stopOrder: &stops}
	b := &fakeModule{id: "b", startErr: errors.New("boom")}
	app.AppendModule("a", a)
	app.AppendModule("b", b)

	err := app.Start()
	if err == nil {
		t.Fatal("expected Start to fail")
	}
	if !a.stopped {
		t.Error("module a should have been stopped after module b failed to start")
	}
}

func TestApp_Module(t *testing.T) {
	app := newTestApp()
	m := &fakeModule{id: "gateway"}
	app.AppendModule("gateway", m)

	got, ok := app.Module("gateway")
	if !ok || got != m {
		t.Fatalf("Module(gateway) = %v, %v; want %v, true", got, ok, m)
	}
	if _, ok := app.Module("missing"); ok {
		t.Fatal("Module(missing) should not be found")
	}
}

func TestAppContext_ServiceRegistry(t *testing.T) {
	ctx := NewAppContext(slog.Default(), "")
	ctx.RegisterService("cache.scan", 42)

	v, ok := ctx.Service("cache.scan")
	if !ok || v.(int) != 42 {
		t.Fatalf("Service(cache.scan) = %v, %v; want 42, true", v, ok)
	}

	child := ctx.ForComponent("gateway")
	if v, ok := child.Service("cache.scan"); !ok || v.(int) != 42 {
		t.Fatal("child context should share the service registry")
	}
}
