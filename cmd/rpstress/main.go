package main

import (
	"errors"
	"flag"
	"fmt"
	stdos "os"
	"strconv"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/wilhasse/rpmalloc-go/api"
	"github.com/wilhasse/rpmalloc-go/os"
	"github.com/wilhasse/rpmalloc-go/sync"
	"github.com/wilhasse/rpmalloc-go/ut"
)

type block struct {
	p    unsafe.Pointer
	size int
	tag  byte
}

type worker struct {
	id      int
	iters   int
	maxSize int
	cross   int
	rnd     *ut.RandGen
	inbox   chan block
	next    chan block
	live    []block
	allocs  uint64
	crossed uint64
}

var failures atomic.Uint64

func main() {
	threadsFlag := flag.Int("threads", envInt("RPSTRESS_THREADS", 4), "Number of worker goroutines")
	itersFlag := flag.Int("iterations", envInt("RPSTRESS_ITERATIONS", 100000), "Allocations per worker")
	maxSizeFlag := flag.Int("max-size", 16<<10, "Largest allocation in bytes")
	crossFlag := flag.Int("cross", 25, "Percentage of blocks freed by another worker")
	seedFlag := flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
	statsFlag := flag.Bool("stats", false, "Print allocator statistics at exit")
	debugFlag := flag.Bool("debug", false, "Panic on allocator misuse")
	flag.Parse()

	if *threadsFlag < 1 || *itersFlag < 1 || *maxSizeFlag < 1 {
		exitErr("invalid flags", errors.New("threads, iterations and max-size must be positive"))
	}
	api.CfgInit()
	if *debugFlag {
		api.CfgSet("debug", true)
	}
	if code := api.Initialize(); code != 0 {
		exitErr("initialize", api.ErrCode(code))
	}
	sync.ResetStats()

	workers := make([]*worker, *threadsFlag)
	for i := range workers {
		workers[i] = &worker{
			id:      i,
			iters:   *itersFlag,
			maxSize: *maxSizeFlag,
			cross:   *crossFlag,
			rnd:     ut.NewRandGen(*seedFlag + uint64(i)*0x9E3779B97F4A7C15),
			inbox:   make(chan block, *itersFlag),
		}
	}
	for i, w := range workers {
		w.next = workers[(i+1)%len(workers)].inbox
	}

	start := time.Now()
	handles := make([]*os.ThreadHandle, len(workers))
	for i, w := range workers {
		handles[i] = os.ThreadCreate(runWorker, w)
	}
	var total uint64
	for _, h := range handles {
		total += os.ThreadWait(h)
	}
	elapsed := time.Since(start)

	// Blocks still in flight belong to workers that have finished.
	for _, w := range workers {
		close(w.inbox)
		for b := range w.inbox {
			verify(w.id, b)
			api.Free(b.p)
		}
	}

	fmt.Printf("threads=%d iterations=%d seed=%d allocs=%d elapsed=%s\n",
		*threadsFlag, *itersFlag, *seedFlag, total, elapsed)
	if *statsFlag {
		printStats(workers)
	}
	api.Finalize()
	if n := failures.Load(); n > 0 {
		exitErr("canary check", fmt.Errorf("%d corrupted blocks", n))
	}
}

func runWorker(arg any) uint64 {
	w := arg.(*worker)
	api.ThreadInitialize()
	defer api.ThreadFinalize()
	for i := 0; i < w.iters; i++ {
		w.step()
		w.drainInbox()
	}
	for _, b := range w.live {
		verify(w.id, b)
		api.Free(b.p)
	}
	w.live = nil
	return w.allocs
}

func (w *worker) step() {
	size := int(w.rnd.Interval(1, uint64(w.maxSize)))
	p := api.Malloc(size)
	if p == nil {
		exitErr("malloc", api.LastError())
	}
	w.allocs++
	b := block{p: p, size: size, tag: byte(w.rnd.Next())}
	fill(b)
	if w.rnd.Percent(w.cross) {
		w.crossed++
		w.next <- b
		return
	}
	w.live = append(w.live, b)
	if len(w.live) < 64 {
		return
	}
	i := int(w.rnd.Interval(0, uint64(len(w.live)-1)))
	victim := w.live[i]
	verify(w.id, victim)
	if w.rnd.Percent(10) {
		victim = w.resize(victim)
		w.live[i] = victim
		return
	}
	api.Free(victim.p)
	w.live[i] = w.live[len(w.live)-1]
	w.live = w.live[:len(w.live)-1]
}

// resize reallocates b and checks that the preserved prefix survived.
func (w *worker) resize(b block) block {
	size := int(w.rnd.Interval(1, uint64(w.maxSize)))
	p := api.Realloc(b.p, size)
	if p == nil {
		exitErr("realloc", api.LastError())
	}
	keep := min(size, b.size)
	verify(w.id, block{p: p, size: keep, tag: b.tag})
	b = block{p: p, size: size, tag: b.tag}
	fill(b)
	return b
}

func (w *worker) drainInbox() {
	for {
		select {
		case b := <-w.inbox:
			verify(w.id, b)
			api.Free(b.p)
		default:
			return
		}
	}
}

func fill(b block) {
	ut.Memset(unsafe.Slice((*byte)(b.p), b.size), b.tag, b.size)
}

func verify(id int, b block) {
	buf := unsafe.Slice((*byte)(b.p), b.size)
	for i, c := range buf {
		if c != b.tag {
			failures.Add(1)
			end := min(len(buf), i+16)
			fmt.Fprintf(stdos.Stderr, "worker %d: block %p byte %d: want %#02x, got %s\n",
				id, b.p, i, b.tag, ut.PrintBuf(buf[i:end]))
			return
		}
	}
}

func printStats(workers []*worker) {
	st := api.GlobalStatistics()
	fmt.Printf("mapped=%d peak=%d cached=%d huge=%d huge_peak=%d mapped_total=%d unmapped_total=%d\n",
		st.Mapped, st.MappedPeak, st.Cached, st.HugeAlloc, st.HugeAllocPeak, st.MappedTotal, st.UnmappedTotal)
	fmt.Printf("chunks=%d spans=%d active_heaps=%d orphaned_heaps=%d\n",
		st.Chunks, st.Spans, st.ActiveHeaps, st.OrphanedHeaps)
	for _, w := range workers {
		fmt.Printf("worker %d: allocs=%d crossed=%d\n", w.id, w.allocs, w.crossed)
	}
	for _, name := range api.StatusNames() {
		if v, err := api.StatusGet(name); err == api.Success {
			fmt.Printf("%s=%d\n", name, v)
		}
	}
}

func envInt(key string, fallback int) int {
	if env := stdos.Getenv(key); env != "" {
		if n, err := strconv.Atoi(env); err == nil {
			return n
		}
	}
	return fallback
}

func exitErr(msg string, err error) {
	fmt.Fprintf(stdos.Stderr, "%s: %v\n", msg, err)
	stdos.Exit(1)
}
