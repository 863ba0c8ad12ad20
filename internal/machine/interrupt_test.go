package machine

import "testing"

type vectorDevice struct {
	name   string
	vector uint32
}

func (v *vectorDevice) Reset() error         { return nil }
func (v *vectorDevice) GetVector(int) uint32 { return v.vector }

type recordingIRQSink struct {
	level      int
	cpl        int
	endedCount int
}

func (s *recordingIRQSink) SetIRQ(level int)          { s.level = level }
func (s *recordingIRQSink) CurrentPriorityMask() int  { return s.cpl }
func (s *recordingIRQSink) EndTimeslice()             { s.endedCount++ }

func TestAggregatorMaxIPL(t *testing.T) {
	reg := NewRegistry()
	agg := NewInterruptAggregator(reg)
	sink := &recordingIRQSink{}
	agg.SetIRQSink(sink)

	d1 := &vectorDevice{name: "uart", vector: 0x40}
	d2 := &vectorDevice{name: "timer", vector: 0x41}
	if err := reg.Register("uart", d1); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("timer", d2); err != nil {
		t.Fatal(err)
	}

	if err := agg.Assert(d1, 2); err != nil {
		t.Fatal(err)
	}
	if agg.CurrentIPL() != 2 || sink.level != 2 {
		t.Fatalf("CurrentIPL=%d sink.level=%d, want 2", agg.CurrentIPL(), sink.level)
	}
	if err := agg.Assert(d2, 6); err != nil {
		t.Fatal(err)
	}
	if agg.CurrentIPL() != 6 || sink.level != 6 {
		t.Fatalf("CurrentIPL=%d sink.level=%d, want 6", agg.CurrentIPL(), sink.level)
	}
	agg.Deassert(d2)
	if agg.CurrentIPL() != 2 {
		t.Fatalf("CurrentIPL=%d after deassert, want 2", agg.CurrentIPL())
	}
}

func TestAggregatorRequestsEarlyQuantumEnd(t *testing.T) {
	reg := NewRegistry()
	agg := NewInterruptAggregator(reg)
	sink := &recordingIRQSink{cpl: 3}
	agg.SetIRQSink(sink)
	d := &vectorDevice{name: "uart", vector: 0x40}
	_ = reg.Register("uart", d)

	_ = agg.Assert(d, 2) // masked: ipl <= cpl
	if sink.endedCount != 0 {
		t.Errorf("masked interrupt should not end timeslice, got %d calls", sink.endedCount)
	}
	_ = agg.Assert(d, 5) // unmasked: ipl > cpl
	if sink.endedCount != 1 {
		t.Errorf("unmasked interrupt should end timeslice once, got %d calls", sink.endedCount)
	}
}

func TestAggregatorAckRegistrationOrderTieBreak(t *testing.T) {
	reg := NewRegistry()
	agg := NewInterruptAggregator(reg)
	first := &vectorDevice{name: "first", vector: VectorSpurious}
	second := &vectorDevice{name: "second", vector: 0x99}
	_ = reg.Register("first", first)
	_ = reg.Register("second", second)
	_ = agg.Assert(first, 4)
	_ = agg.Assert(second, 4)

	if got := agg.Ack(4); got != 0x99 {
		t.Errorf("Ack(4) = %#x, want 0x99 (second device, first returned spurious)", got)
	}
}

func TestAggregatorAckSpuriousWhenNoneClaim(t *testing.T) {
	reg := NewRegistry()
	agg := NewInterruptAggregator(reg)
	if got := agg.Ack(5); got != VectorSpurious {
		t.Errorf("Ack with no devices = %#x, want VectorSpurious", got)
	}
}
