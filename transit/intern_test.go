package transit

import (
	"sync"
	"testing"
)

func TestIntern_Idempotent(t *testing.T) {
	a := Intern("frame-time")
	for i := 0; i < 100; i++ {
		if got := Intern("frame-time"); got != a || got.ID() != a.ID() {
			t.Fatalf("intern returned a different identity on call %d", i)
		}
	}
	if a.Value() != "frame-time" {
		t.Errorf("value = %q", a.Value())
	}
}

func TestIntern_DistinctLiterals(t *testing.T) {
	a := Intern("alpha")
	b := Intern("beta")
	if a.ID() == b.ID() {
		t.Fatal("distinct literals must get distinct identities")
	}
}

func TestIntern_Concurrent(t *testing.T) {
	const workers = 16
	results := make([]*StaticString, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			results[slot] = Intern("contended-literal")
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent interning of the same literal produced different identities")
		}
	}
}
