package mem

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/wilhasse/rpmalloc-go/os"
	"github.com/wilhasse/rpmalloc-go/ut"
)

func TestAllocatorLifecycle(t *testing.T) {
	a := New(DefaultConfig())
	if a.State() != StateUninitialized {
		t.Fatalf("state=%v", a.State())
	}
	if _, err := a.NewHeap(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("NewHeap before init: %v", err)
	}
	if err := a.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := a.Initialize(); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second Initialize: %v", err)
	}
	if st := a.Stats(); st.Chunks != DefaultInitialChunks || st.Mapped != ChunkSize {
		t.Fatalf("after init %+v", st)
	}
	h, err := a.NewHeap()
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}
	for i := 0; i < 100; i++ {
		if _, err := h.Allocate(i * 700); err != nil {
			t.Fatalf("Allocate: %v", err)
		}
	}
	if _, err := h.Allocate(8 << 20); err != nil {
		t.Fatalf("huge: %v", err)
	}
	if err := a.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	st := a.Stats()
	if st.Mapped != 0 || st.HugeAlloc != 0 || st.Chunks != 0 {
		t.Fatalf("memory left mapped after finalize: %+v", st)
	}
	if st.MappedTotal != st.UnmappedTotal || st.MappedPeak == 0 {
		t.Fatalf("totals %+v", st)
	}
	if a.State() != StateFinalized || a.State().String() != "finalized" {
		t.Fatalf("state=%v", a.State())
	}
	if err := a.Initialize(); !errors.Is(err, ErrFinalized) {
		t.Fatalf("Initialize after finalize: %v", err)
	}
	if _, err := h.Allocate(8); !errors.Is(err, ErrUseAfterFinalize) {
		t.Fatalf("heap after finalize: %v", err)
	}
	if err := a.Free(0x1000); !errors.Is(err, ErrUseAfterFinalize) {
		t.Fatalf("free after finalize: %v", err)
	}
	if a.UsableSize(0x1000) != 0 {
		t.Fatalf("UsableSize after finalize")
	}
	if err := a.Finalize(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("second Finalize: %v", err)
	}
}

func TestAllocatorDebugPanics(t *testing.T) {
	ut.DbgReset()
	defer ut.DbgReset()
	cfg := DefaultConfig()
	cfg.Debug = true
	a := newTestAllocator(t, cfg)
	h := newTestHeap(t, a)
	p := mustAlloc(t, h, 32)
	_ = h.Free(p)

	defer func() {
		r := recover()
		if _, ok := r.(*ut.AssertionError); !ok {
			t.Fatalf("expected assertion panic, got %v", r)
		}
		if _, n := ut.DbgLastAssertion(); n != 1 {
			t.Fatalf("assertion count=%d", n)
		}
	}()
	_ = h.Free(p)
}

func TestAllocatorLogf(t *testing.T) {
	var lines []string
	cfg := DefaultConfig()
	cfg.Logf = func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}
	a := New(cfg)
	if err := a.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	h, _ := a.NewHeap()
	if _, err := h.Allocate(10); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	_ = h.Free(0x10)
	_ = a.Finalize()
	if len(lines) != 2 {
		t.Fatalf("log lines %q", lines)
	}
}

func TestAllocatorNoInitialChunks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialChunks = 0
	a := newTestAllocator(t, cfg)
	if a.Stats().Mapped != 0 {
		t.Fatalf("expected nothing mapped")
	}
	h := newTestHeap(t, a)
	mustAlloc(t, h, 10)
	if a.Stats().Chunks != 1 {
		t.Fatalf("expected one chunk on demand")
	}
}

func TestAllocatorSpanRelease(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ThreadCacheSpans = 0
	cfg.GlobalCacheSpans = 0
	cfg.InitialChunks = 0
	a := newTestAllocator(t, cfg)
	h := newTestHeap(t, a)
	p := mustAlloc(t, h, 4*SpanUnit)
	q := mustAlloc(t, h, 4*SpanUnit)
	_ = h.Free(p)
	_ = h.Free(q)
	h.Finalize()
	if st := a.Stats(); st.Mapped != 0 || st.Spans != 0 || st.Cached != 0 {
		t.Fatalf("expected chunk to be unmapped: %+v", st)
	}
}

func TestAllocatorHugePagesArePerInstance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HugePages = true
	advised := newTestAllocator(t, cfg)
	plain := newTestAllocator(t, DefaultConfig())
	if advised.spans.mapFlags&os.MapHugePages == 0 {
		t.Fatalf("huge page allocator lost its map flag")
	}
	if plain.spans.mapFlags != 0 {
		t.Fatalf("plain allocator map flags=%v", plain.spans.mapFlags)
	}
	if err := advised.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	h := newTestHeap(t, plain)
	mustAlloc(t, h, 10)
	mustAlloc(t, h, 3<<20)
	for n := plain.spans.chunks.First; n != nil; n = n.Next {
		if n.Data.mapping.HugePages {
			t.Fatalf("chunk %#x advised without huge pages configured", n.Data.base)
		}
	}
	for n := plain.spans.huge.First; n != nil; n = n.Next {
		if n.Data.mapping.HugePages {
			t.Fatalf("huge block %#x advised without huge pages configured", n.Data.base)
		}
	}
}

type stressBlock struct {
	p    uintptr
	size int
	tag  byte
}

func TestAllocatorConcurrentStress(t *testing.T) {
	a := newTestAllocator(t, DefaultConfig())
	const workers = 8
	const rounds = 3000
	chans := make([]chan stressBlock, workers)
	for i := range chans {
		chans[i] = make(chan stressBlock, rounds)
	}
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			h, err := a.NewHeap()
			if err != nil {
				errs <- err
				return
			}
			defer h.Finalize()
			rnd := ut.NewRandGen(uint64(w + 1))
			var live []stressBlock
			check := func(b stressBlock) error {
				for i, c := range Bytes(b.p, b.size) {
					if c != b.tag {
						return fmt.Errorf("worker %d: block %#x byte %d = %#x, want %#x", w, b.p, i, c, b.tag)
					}
				}
				return nil
			}
			for r := 0; r < rounds; r++ {
				size := int(rnd.Interval(1, 20000))
				if rnd.Percent(2) {
					size = int(rnd.Interval(LargeSizeLimit/2, 2*LargeSizeLimit))
				}
				p, err := h.Allocate(size)
				if err != nil {
					errs <- err
					return
				}
				b := stressBlock{p: p, size: size, tag: byte(rnd.Next())}
				fill(p, size, b.tag)
				if rnd.Percent(30) {
					chans[(w+1)%workers] <- b
				} else {
					live = append(live, b)
				}
				if len(live) > 64 {
					i := int(rnd.Interval(0, uint64(len(live)-1)))
					if err := check(live[i]); err != nil {
						errs <- err
						return
					}
					if err := h.Free(live[i].p); err != nil {
						errs <- err
						return
					}
					live[i] = live[len(live)-1]
					live = live[:len(live)-1]
				}
			drain:
				for {
					select {
					case b := <-chans[w]:
						if err := check(b); err != nil {
							errs <- err
							return
						}
						if err := h.Free(b.p); err != nil {
							errs <- err
							return
						}
					default:
						break drain
					}
				}
			}
			for _, b := range live {
				if err := check(b); err != nil {
					errs <- err
					return
				}
				_ = h.Free(b.p)
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	if st := a.Stats(); st.ActiveHeaps != 0 {
		t.Fatalf("heaps still active: %+v", st)
	}
}
