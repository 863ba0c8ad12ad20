package emuloop

import (
	"io"
	"strings"
	"testing"

	"github.com/rcornwell/m68kemu/internal/cpuengine"
	"github.com/rcornwell/m68kemu/internal/machine"
	"github.com/rcornwell/m68kemu/internal/trace"
)

func newTestMachine() (*machine.Machine, *cpuengine.FakeEngine) {
	m := machine.New(1_000_000, true, machine.MissReturnsZero)
	_ = m.AddMemory(0, 0x10000, true, nil)
	e := cpuengine.NewFakeEngine()
	m.SetCPU(e)
	return m, e
}

func TestLoopStopsAtCycleLimit(t *testing.T) {
	m, e := newTestMachine()
	l := New(m, e)
	l.CycleLimit = 2500

	reason := l.Run()
	if reason != TerminationCycleLimit {
		t.Fatalf("Run() = %v, want TerminationCycleLimit", reason)
	}
	if reason.ExitCode() != 0 {
		t.Errorf("ExitCode() = %d, want 0 for a clean cycle-limit stop", reason.ExitCode())
	}
}

func TestLoopHostShutdownService(t *testing.T) {
	m, e := newTestMachine()
	l := New(m, e)
	e.SetIllegalInstrCallback(l.handleIllegal)

	if !e.RaiseIllegal(hostServiceLineA | ServiceShutdown) {
		t.Fatal("expected shutdown host-service opcode to be handled")
	}
	if l.reason != TerminationHostShutdown {
		t.Errorf("reason = %v, want TerminationHostShutdown", l.reason)
	}
}

func TestLoopWriteStderrService(t *testing.T) {
	m, e := newTestMachine()
	l := New(m, e)
	var out strings.Builder
	l.Stderr = &out

	msg := []byte("Hi\n")
	e.MemWriteBulk(0x2000, msg)
	e.SetReg(cpuengine.RegA0, 0x2000)
	e.SetReg(cpuengine.RegD0, uint32(len(msg)))
	e.SetIllegalInstrCallback(l.handleIllegal)

	if !e.RaiseIllegal(hostServiceLineA | ServiceWriteStderr) {
		t.Fatal("expected write-stderr host service to be handled")
	}
	if out.String() != "Hi\n" {
		t.Errorf("stderr output = %q, want %q", out.String(), "Hi\n")
	}
}

func TestLoopUnknownLineAOpcodeUnhandled(t *testing.T) {
	m, e := newTestMachine()
	l := New(m, e)
	e.SetIllegalInstrCallback(l.handleIllegal)
	if e.RaiseIllegal(hostServiceLineA | 0x0FF) {
		t.Fatal("expected unregistered service id to be reported unhandled")
	}
}

func TestLoopBusErrorIsNotFatal(t *testing.T) {
	m, e := newTestMachine()
	l := New(m, e)
	l.CycleLimit = 10
	l.bridgeMemory()

	// 0x50000 falls outside the single mapped region, so the engine routes
	// it to the device handler, which finds no device there either.
	e.Access(cpuengine.OpRead, 0x50000, 2, 0)

	raised, addr, write := e.BusErrorRaised()
	if !raised {
		t.Fatal("expected the out-of-range read to raise a bus-error exception on the engine")
	}
	if addr != 0x50000 || write {
		t.Errorf("RaiseBusError(%#x, %v), want (0x50000, false)", addr, write)
	}
	if l.fatalErr != nil {
		t.Errorf("fatalErr = %v, want nil: a bus error must not be fatal to the run loop", l.fatalErr)
	}

	reason := l.Run()
	if reason != TerminationCycleLimit {
		t.Errorf("Run() = %v, want TerminationCycleLimit: a bus error must not terminate the loop", reason)
	}
}

func TestLoopTraceControlLimitDisablesAtCycleCount(t *testing.T) {
	m, e := newTestMachine()
	l := New(m, e)
	l.CycleLimit = 20
	sink := trace.New(io.Discard)
	l.Trace = sink
	e.SetIllegalInstrCallback(l.handleIllegal)

	e.SetReg(cpuengine.RegD1, traceControlStart)
	e.SetReg(cpuengine.RegD0, 2) // "instruction"
	if !e.RaiseIllegal(hostServiceLineA | ServiceTraceControl) {
		t.Fatal("expected trace-control host service to be handled")
	}

	e.SetReg(cpuengine.RegD1, traceControlLimit)
	e.SetReg(cpuengine.RegD2, 5)
	if !e.RaiseIllegal(hostServiceLineA | ServiceTraceControl) {
		t.Fatal("expected trace-control limit form to be handled")
	}
	if l.TraceLimit != 5 {
		t.Fatalf("TraceLimit = %d, want 5", l.TraceLimit)
	}

	reason := l.Run()
	if reason != TerminationCycleLimit {
		t.Fatalf("Run() = %v, want TerminationCycleLimit", reason)
	}
	if sink.Enabled(trace.CategoryInstruction) {
		t.Error("expected instruction tracing to be disabled once the trace limit was reached")
	}
	if l.TraceLimit != 0 {
		t.Errorf("TraceLimit = %d, want 0 once consumed", l.TraceLimit)
	}
}

func TestLoopQuantumRespectsSchedulerDeadline(t *testing.T) {
	m, e := newTestMachine()
	l := New(m, e)
	l.MaxQuantum = 100000
	l.CycleLimit = 5

	fired := false
	m.CallbackAfter(nil, "probe", 3, func() { fired = true })

	quantum := l.computeQuantum(0)
	if quantum != 3 {
		t.Errorf("computeQuantum = %d, want 3 (scheduler deadline, not MaxQuantum or CycleLimit)", quantum)
	}
	_ = fired
}
