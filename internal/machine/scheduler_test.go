package machine

import "testing"

type fakeDevice struct{ name string }

func (f *fakeDevice) Reset() error           { return nil }
func (f *fakeDevice) GetVector(int) uint32   { return VectorAutovector }

func TestSchedulerOneShot(t *testing.T) {
	s := NewScheduler()
	d := &fakeDevice{"d"}
	fired := false
	s.After(0, d, "timeout", 100, func() { fired = true })

	s.FireDue(50)
	if fired {
		t.Fatal("callback fired before its deadline")
	}
	s.FireDue(100)
	if !fired {
		t.Fatal("callback did not fire at its deadline")
	}
	if _, ok := s.NextDeadline(); ok {
		t.Fatal("one-shot entry should be removed after firing")
	}
}

// TestSchedulerPeriodic checks SPEC_FULL.md §8 invariant 8: callback_every
// fires exactly k times over k*period cycles.
func TestSchedulerPeriodic(t *testing.T) {
	s := NewScheduler()
	d := &fakeDevice{"timer"}
	count := 0
	s.Every(0, d, "tick", 1000, func() { count++ })

	for cycle := int64(1000); cycle <= 5000; cycle += 1000 {
		s.FireDue(cycle)
	}
	if count != 5 {
		t.Errorf("fired %d times, want 5", count)
	}
}

func TestSchedulerReentrantReschedule(t *testing.T) {
	s := NewScheduler()
	d := &fakeDevice{"d"}
	var log []string
	var arm func(now int64)
	arm = func(now int64) {
		target := now + 10
		s.At(now, d, "self", target, func() {
			log = append(log, "fired")
			arm(target)
		})
	}
	arm(0)
	s.FireDue(10)
	if len(log) != 1 {
		t.Fatalf("expected 1 fire, got %d", len(log))
	}
	deadline, ok := s.NextDeadline()
	if !ok || deadline != 20 {
		t.Fatalf("expected re-armed deadline 20, got %d ok=%v", deadline, ok)
	}
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler()
	d := &fakeDevice{"d"}
	fired := false
	s.After(0, d, "x", 10, func() { fired = true })
	s.Cancel(d, "x")
	s.FireDue(100)
	if fired {
		t.Fatal("cancelled callback still fired")
	}
}

// TestSchedulerMonotonicity checks SPEC_FULL.md §4.3 monotonicity: entries
// that are due in the same FireDue call run in non-decreasing target order.
func TestSchedulerMonotonicity(t *testing.T) {
	s := NewScheduler()
	d := &fakeDevice{"d"}
	var order []int64
	s.At(0, d, "a", 10, func() { order = append(order, 10) })
	s.At(0, d, "b", 20, func() { order = append(order, 20) })
	s.At(0, d, "c", 15, func() { order = append(order, 15) })

	s.FireDue(25)
	want := []int64{10, 15, 20}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestSchedulerQuantumShortening(t *testing.T) {
	s := NewScheduler()
	req := &recordingRequester{}
	s.SetQuantumRequester(req)
	d := &fakeDevice{"d"}
	s.At(0, d, "near", 50, func() {})
	if req.lastDelta != 50 {
		t.Errorf("quantum requester got delta %d, want 50", req.lastDelta)
	}
	// A farther deadline must not widen the already-armed quantum upward;
	// the scheduler re-arms to its own earliest entry only.
	s.At(0, d, "far", 500, func() {})
	if req.lastDelta != 50 {
		t.Errorf("scheduler should still report its nearest deadline (50), got %d", req.lastDelta)
	}
}

type recordingRequester struct{ lastDelta int64 }

func (r *recordingRequester) ModifyTimeslice(delta int64) { r.lastDelta = delta }
