package lane

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// checkInvariant verifies running lanes equal lanes with members
func checkInvariant(t *testing.T, r *Registry) {
	t.Helper()
	withMembers := 0
	for i := 0; i < r.Len(); i++ {
		hasMembers := len(r.Members(i)) > 0
		if hasMembers {
			withMembers++
		}
		if hasMembers && r.Status(i) != Running {
			t.Errorf("lane %d has members but is %v", i, r.Status(i))
		}
		if !hasMembers && r.Status(i) == Running {
			t.Errorf("lane %d is running without members", i)
		}
	}
	if r.Running() != withMembers {
		t.Errorf("Running() = %d, lanes with members = %d", r.Running(), withMembers)
	}
	if r.Running() > r.Len() {
		t.Errorf("Running() = %d exceeds lane count %d", r.Running(), r.Len())
	}
}

func TestFindIdleLaneMarksRunning(t *testing.T) {
	r := New(2, nil)

	first, ok := r.FindIdleLane()
	if !ok || first != 0 {
		t.Fatalf("FindIdleLane = %d, %v; want 0, true", first, ok)
	}
	if r.Status(0) != Running {
		t.Error("lane 0 should be running after selection")
	}

	second, ok := r.FindIdleLane()
	if !ok || second != 1 {
		t.Fatalf("second FindIdleLane = %d, %v; want 1, true", second, ok)
	}

	if _, ok := r.FindIdleLane(); ok {
		t.Error("expected no idle lane when all are running")
	}
	if r.HasIdle() {
		t.Error("HasIdle should be false")
	}
}

func TestFindIdleLaneWhere(t *testing.T) {
	r := New(3, nil)

	idx, ok := r.FindIdleLaneWhere(func(l int) bool { return l == 2 })
	if !ok || idx != 2 {
		t.Fatalf("FindIdleLaneWhere = %d, %v; want 2, true", idx, ok)
	}
	if r.Status(0) != Idle || r.Status(1) != Idle {
		t.Error("rejected lanes changed status")
	}

	if _, ok := r.FindIdleLaneWhere(func(int) bool { return false }); ok {
		t.Error("lane picked with every lane rejected")
	}
	if !r.HasIdle() {
		t.Error("rejection consumed idle lanes")
	}
}

func TestFindIdleLaneRandomPicker(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r := New(8, rng.Intn)

	seen := make(map[int]bool)
	for i := 0; i < 8; i++ {
		idx, ok := r.FindIdleLane()
		if !ok {
			t.Fatalf("pick %d: no idle lane", i)
		}
		if seen[idx] {
			t.Fatalf("lane %d picked twice", idx)
		}
		seen[idx] = true
	}
	if r.Running() != 8 {
		t.Errorf("Running() = %d, want 8", r.Running())
	}
}

func TestReleaseIdempotent(t *testing.T) {
	r := New(1, nil)
	idx, _ := r.FindIdleLane()
	r.Add(idx, "a")
	r.Add(idx, "b")
	checkInvariant(t, r)

	if r.Release(idx, "a") {
		t.Error("lane should stay running while b is a member")
	}
	checkInvariant(t, r)

	if r.Release(idx, "a") {
		t.Error("second release of a must be a no-op")
	}
	if !r.Release(idx, "b") {
		t.Error("releasing the last member should idle the lane")
	}
	checkInvariant(t, r)

	if r.Release(idx, "b") {
		t.Error("releasing an already released fragment must be a no-op")
	}
	if r.Release(5, "x") {
		t.Error("out of range release must be a no-op")
	}
}

func TestMembersOrderAndCopy(t *testing.T) {
	r := New(1, nil)
	r.Add(0, "a")
	r.Add(0, "b")
	r.Add(0, "c")

	got := r.Members(0)
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("Members (-want +got):\n%s", diff)
	}
	got[0] = "mutated"
	if r.Members(0)[0] != "a" {
		t.Error("Members must return a copy")
	}

	last, ok := r.Last(0)
	if !ok || last != "c" {
		t.Errorf("Last = %q, %v; want c", last, ok)
	}
}

func TestAbandon(t *testing.T) {
	r := New(1, nil)
	idx, _ := r.FindIdleLane()
	if !r.Abandon(idx) {
		t.Error("abandoning an empty running lane should idle it")
	}
	checkInvariant(t, r)
}

func TestFindReusableLane(t *testing.T) {
	r := New(3, nil)
	for i := 0; i < 3; i++ {
		idx, _ := r.FindIdleLane()
		r.Add(idx, string(rune('a'+i)))
	}

	idx, ok := r.FindReusableLane(func(lane int, newest string) bool { return newest == "b" })
	if !ok || idx != 1 {
		t.Errorf("FindReusableLane = %d, %v; want 1, true", idx, ok)
	}
	if r.Status(1) != Running {
		t.Error("reused lane must remain running")
	}

	if _, ok := r.FindReusableLane(func(int, string) bool { return false }); ok {
		t.Error("expected no reusable lane")
	}
}

func TestReset(t *testing.T) {
	r := New(3, nil)
	for i := 0; i < 3; i++ {
		idx, _ := r.FindIdleLane()
		r.Add(idx, "x")
	}
	r.Reset()
	if r.Running() != 0 {
		t.Errorf("Running after Reset = %d", r.Running())
	}
	checkInvariant(t, r)
}

func TestNewClampsLaneCount(t *testing.T) {
	if New(0, nil).Len() != 1 {
		t.Error("lane count should clamp to 1")
	}
}
