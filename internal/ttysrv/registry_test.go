package ttysrv

import "testing"

func testConfig(argv ...string) *Config {
	return &Config{Argv: argv}
}

func TestRegistryAdmitsUpToMaxClients(t *testing.T) {
	cfg := testConfig("cat")
	cfg.MaxClients = 2
	r := NewRegistry(cfg, nil)

	a := &Session{}
	b := &Session{}
	c := &Session{}

	if !r.Admit(a) {
		t.Fatal("first session should be admitted")
	}
	if !r.Admit(b) {
		t.Fatal("second session should be admitted")
	}
	if r.Admit(c) {
		t.Fatal("third session should be refused: max_clients reached")
	}
	if got := r.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
}

func TestRegistryMaxClientsZeroMeansUnlimited(t *testing.T) {
	cfg := testConfig("cat")
	r := NewRegistry(cfg, nil)

	for i := 0; i < 50; i++ {
		if !r.Admit(&Session{}) {
			t.Fatalf("session %d refused, want unlimited admission", i)
		}
	}
}

func TestRegistryOnceAdmitsExactlyOneSessionEver(t *testing.T) {
	cfg := testConfig("cat")
	cfg.Once = true
	r := NewRegistry(cfg, nil)

	first := &Session{}
	if !r.Admit(first) {
		t.Fatal("first session should be admitted")
	}
	if r.Admit(&Session{}) {
		t.Fatal("second concurrent session should be refused under once")
	}

	r.Remove(first)
	if r.Admit(&Session{}) {
		t.Fatal("once must refuse a session even after the first one closed")
	}
}

func TestRegistryOnDrainedFiresOnlyUnderOnceAndOnlyWhenEmpty(t *testing.T) {
	cfg := testConfig("cat")
	cfg.Once = true
	fired := 0
	r := NewRegistry(cfg, func() { fired++ })

	s := &Session{}
	r.Admit(s)
	r.Remove(s)

	if fired != 1 {
		t.Fatalf("onDrained fired %d times, want 1", fired)
	}

	r.Remove(s) // already removed; must not fire again
	if fired != 1 {
		t.Fatalf("onDrained fired %d times after redundant Remove, want 1", fired)
	}
}

func TestCanAdmitDoesNotRegisterAnything(t *testing.T) {
	cfg := testConfig("cat")
	cfg.Once = true
	r := NewRegistry(cfg, nil)

	for i := 0; i < 5; i++ {
		if !r.CanAdmit() {
			t.Fatalf("CanAdmit() call %d = false, want true (a peek must not consume the once slot)", i)
		}
	}
	if got := r.Count(); got != 0 {
		t.Fatalf("Count() after only CanAdmit calls = %d, want 0", got)
	}

	s := &Session{}
	if !r.Admit(s) {
		t.Fatal("Admit should still succeed after repeated CanAdmit peeks")
	}
}

func TestRegistryOnDrainedNeverFiresWithoutOnce(t *testing.T) {
	cfg := testConfig("cat")
	fired := false
	r := NewRegistry(cfg, func() { fired = true })

	s := &Session{}
	r.Admit(s)
	r.Remove(s)

	if fired {
		t.Fatal("onDrained must not fire when once is false")
	}
}
