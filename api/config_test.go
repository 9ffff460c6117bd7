package api

import "testing"

func TestCfgSetGet(t *testing.T) {
	if err := CfgInit(); err != Success {
		t.Fatalf("CfgInit got %v, want %v", err, Success)
	}
	if err := CfgSet("debug", true); err != Success {
		t.Fatalf("CfgSet got %v, want %v", err, Success)
	}
	var val bool
	if err := CfgGet("debug", &val); err != Success {
		t.Fatalf("CfgGet got %v, want %v", err, Success)
	}
	if !val {
		t.Fatal("expected debug to be true")
	}
	if err := CfgSet("huge_pages", "on"); err != Success {
		t.Fatalf("CfgSet text bool got %v, want %v", err, Success)
	}
	var ver string
	if err := CfgGet("VERSION", &ver); err != Success || ver != version {
		t.Fatalf("CfgGet version got %q, %v", ver, err)
	}
	CfgInit()
}

func TestCfgNumericRange(t *testing.T) {
	CfgInit()
	defer CfgInit()
	if err := CfgSet("thread_cache_spans", 4); err != Success {
		t.Fatalf("CfgSet got %v, want %v", err, Success)
	}
	var n int
	if err := CfgGet("thread_cache_spans", &n); err != Success || n != 4 {
		t.Fatalf("CfgGet got %d, %v", n, err)
	}
	if err := CfgSet("thread_cache_spans", 5000); err != ErrInvalidArgument {
		t.Fatalf("out of range CfgSet got %v, want %v", err, ErrInvalidArgument)
	}
	if err := CfgSet("thread_cache_spans", -1); err != ErrInvalidArgument {
		t.Fatalf("negative CfgSet got %v, want %v", err, ErrInvalidArgument)
	}
	if err := CfgSet("global_cache_spans", "many"); err != ErrInvalidArgument {
		t.Fatalf("text CfgSet got %v, want %v", err, ErrInvalidArgument)
	}
	var s string
	if err := CfgGet("initial_chunks", &s); err != ErrInvalidArgument {
		t.Fatalf("CfgGet into string got %v, want %v", err, ErrInvalidArgument)
	}
}

func TestCfgFlags(t *testing.T) {
	CfgInit()
	defer CfgInit()
	if err := CfgSet("version", "x"); err != ErrReadOnly {
		t.Fatalf("CfgSet version got %v, want %v", err, ErrReadOnly)
	}
	if err := CfgSet("missing", 1); err != ErrNotFound {
		t.Fatalf("CfgSet missing got %v, want %v", err, ErrNotFound)
	}
	if typ, err := CfgVarGetType("initial_chunks"); err != Success || typ != CfgTypeUlint {
		t.Fatalf("CfgVarGetType got %v, %v", typ, err)
	}
	if _, err := CfgVarGetType("missing"); err != ErrNotFound {
		t.Fatalf("CfgVarGetType missing got %v", err)
	}
	if code := Initialize(); code != int(Success) {
		t.Fatalf("Initialize got %v", ErrCode(code))
	}
	defer Finalize()
	if err := CfgSet("debug", true); err != ErrReadOnly {
		t.Fatalf("CfgSet after Initialize got %v, want %v", err, ErrReadOnly)
	}
}

func TestCfgGetAll(t *testing.T) {
	CfgInit()
	names, err := CfgGetAll()
	if err != Success {
		t.Fatalf("CfgGetAll got %v, want %v", err, Success)
	}
	want := []string{"debug", "decommit_spans", "global_cache_spans", "heap_pool_size", "huge_pages", "initial_chunks", "thread_cache_spans", "version"}
	if len(names) != len(want) {
		t.Fatalf("CfgGetAll got %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("CfgGetAll got %v, want %v", names, want)
		}
	}
	CfgShutdown()
	if _, err := CfgVarGetType("debug"); err != ErrNotFound {
		t.Fatalf("expected empty registry after shutdown, got %v", err)
	}
	CfgInit()
}

func TestConfigDrivesInitialize(t *testing.T) {
	CfgInit()
	defer CfgInit()
	if err := CfgSet("initial_chunks", 0); err != Success {
		t.Fatalf("CfgSet got %v", err)
	}
	if err := CfgSet("global_cache_spans", 0); err != Success {
		t.Fatalf("CfgSet got %v", err)
	}
	if code := Initialize(); code != int(Success) {
		t.Fatalf("Initialize got %v", ErrCode(code))
	}
	defer Finalize()
	if st := GlobalStatistics(); st.Chunks != 0 || st.Mapped != 0 {
		t.Fatalf("expected nothing mapped, got %+v", st)
	}
	cfg := configFromRegistry()
	if cfg.InitialChunks != 0 || cfg.GlobalCacheSpans != 0 || cfg.ThreadCacheSpans != 8 || !cfg.DecommitSpans {
		t.Fatalf("configFromRegistry got %+v", cfg)
	}
}
