package benchmarks

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"sort"
	"testing"

	"gonum.org/v1/gonum/stat"

	"github.com/yourusername/stream-monitor/pkg/sketch"
)

const (
	numItems     = 100_000
	numLatencies = 500_000
)

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

func getMemUsage() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc
}

func TestMemoryFootprint(t *testing.T) {
	// Garbage collect to start clean
	runtime.GC()
	startMem := getMemUsage()

	// 1. Standard Map
	stdMap := make(map[string]int64)
	for i := 0; i < numItems; i++ {
		key := fmt.Sprintf("user-%d", i)
		stdMap[key] = int64(i)
	}

	runtime.GC()
	mapMem := getMemUsage() - startMem

	// Clean up map
	stdMap = nil
	runtime.GC()
	startMemSketch := getMemUsage()

	// 2. CountMinSketch
	// Width 2000, Depth 5 is reasonable for heavy hitters approximation
	cms, err := sketch.NewCountMinSketch(2000, 5)
	if err != nil {
		t.Fatalf("Failed to build sketch: %v", err)
	}
	for i := 0; i < numItems; i++ {
		key := fmt.Sprintf("user-%d", i)
		cms.Add(key, int64(i))
	}

	runtime.GC()
	cmsMem := getMemUsage() - startMemSketch

	fmt.Printf("\n=== Memory Footprint Benchmark (N=%d) ===\n", numItems)
	fmt.Printf("Standard Map[string]int64: %d MB\n", bToMb(mapMem))
	fmt.Printf("CountMinSketch:            %d MB\n", bToMb(cmsMem))

	if mapMem > 0 {
		var savings float64
		if mapMem > cmsMem {
			savings = float64(mapMem-cmsMem) / float64(mapMem) * 100
		} else {
			savings = 0 // No savings or measurement noise
		}
		fmt.Printf("Savings:                   %.2f%%\n", savings)
	} else {
		fmt.Println("Savings:                   N/A (Map memory too low)")
	}
}

func TestQuantileAccuracy(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))

	// Keep the full window around as ground truth while the digest sees
	// the same stream one value at a time.
	window := make([]float64, numLatencies)
	td, err := sketch.NewTDigest(sketch.DefaultCompression)
	if err != nil {
		t.Fatalf("Failed to build digest: %v", err)
	}
	for i := range window {
		v := rng.ExpFloat64() * 25.0 // long-tailed latencies, ms
		window[i] = v
		if err := td.Add(v); err != nil {
			t.Fatalf("Failed to add value: %v", err)
		}
	}

	sort.Float64s(window)

	fmt.Printf("\n=== Quantile Accuracy (N=%d) ===\n", numLatencies)
	for _, q := range []float64{0.5, 0.95, 0.99, 0.999} {
		exact := stat.Quantile(q, stat.Empirical, window, nil)
		approx, err := td.Quantile(q)
		if err != nil {
			t.Fatalf("Failed to query quantile: %v", err)
		}

		relErr := 0.0
		if exact != 0 {
			relErr = (approx - exact) / exact * 100
		}
		fmt.Printf("q=%.3f  exact=%8.3f  digest=%8.3f  err=%+.2f%%\n", q, exact, approx, relErr)

		if relErr > 5 || relErr < -5 {
			t.Errorf("q=%g relative error %.2f%% outside 5%%", q, relErr)
		}
	}

	fmt.Printf("Window size:   %d float64s (%d KB)\n", numLatencies, numLatencies*8/1024)
	fmt.Printf("Digest size:   %d centroids\n", td.CentroidCount())
}
