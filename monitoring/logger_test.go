package monitoring

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// capture swaps the logger for the duration of the test.
func capture(t *testing.T, l Level) *[]string {
	t.Helper()
	var (
		mu    sync.Mutex
		lines []string
	)
	prevLogf, prevLevel := CurrentLogger(), CurrentLevel()
	t.Cleanup(func() {
		SetLogger(prevLogf)
		SetLevel(prevLevel)
	})
	SetLogger(func(format string, v ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	SetLevel(l)
	return &lines
}

func TestLevelGating(t *testing.T) {
	lines := capture(t, LevelWarn)

	Errorf("disk %s", "full")
	Warnf("slow batch %d", 3)
	Infof("hidden")
	Debugf("hidden")

	assert.Equal(t, []string{"[error] disk full", "[warn] slow batch 3"}, *lines)

	SetLevel(LevelDebug)
	Debugf("now visible")
	assert.Equal(t, "[debug] now visible", (*lines)[2])
}

func TestSetLogger_NilMutes(t *testing.T) {
	capture(t, LevelDebug)
	SetLogger(nil)
	assert.NotPanics(t, func() { Infof("dropped") })
}

func TestSetLogger_WhileLogging(t *testing.T) {
	capture(t, LevelDebug)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		count int
	)
	counter := func(string, ...interface{}) {
		mu.Lock()
		count++
		mu.Unlock()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				Debugf("batch %d", j)
			}
		}()
	}
	for i := 0; i < 50; i++ {
		SetLogger(counter)
		SetLogger(nil)
	}
	SetLogger(counter)
	wg.Wait()

	Infof("last")
	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, count)
}

func TestLevelFromVerbosity(t *testing.T) {
	assert.Equal(t, LevelError, LevelFromVerbosity(-1))
	assert.Equal(t, LevelError, LevelFromVerbosity(0))
	assert.Equal(t, LevelWarn, LevelFromVerbosity(1))
	assert.Equal(t, LevelInfo, LevelFromVerbosity(2))
	assert.Equal(t, LevelDebug, LevelFromVerbosity(3))
	assert.Equal(t, LevelDebug, LevelFromVerbosity(9))
}

func TestPerformanceData_Log(t *testing.T) {
	lines := capture(t, LevelInfo)
	PerformanceData{BusAmount: 3, LineAmount: 2, Iterations: 6}.Log()
	assert.Len(t, *lines, 2)
	assert.Contains(t, (*lines)[0], "buses=3 lines=2")
	assert.Contains(t, (*lines)[1], "iterations=6")
}

func TestReadRuntimeMetrics(t *testing.T) {
	m := ReadRuntimeMetrics()
	assert.Positive(t, m.Goroutines)
	assert.Positive(t, m.SysMB)
}
