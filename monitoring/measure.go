package monitoring

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Measure records wall time of named phases. A phase still running when it
// is read is closed at that moment and reported as forced.
type Measure struct {
	mu      sync.Mutex
	now     func() time.Time
	started time.Time
	phases  map[string]*phase
	order   []string
}

type phase struct {
	start, end time.Time
	forced     bool
}

// NewMeasure starts the overall clock.
func NewMeasure() *Measure {
	return newMeasure(time.Now)
}

func newMeasure(now func() time.Time) *Measure {
	return &Measure{
		now:     now,
		started: now(),
		phases:  make(map[string]*phase),
	}
}

// Start opens (or restarts) a phase.
func (m *Measure) Start(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phases[key]
	if !ok {
		p = &phase{}
		m.phases[key] = p
		m.order = append(m.order, key)
	}
	p.start = m.now()
	p.end = time.Time{}
	p.forced = false
}

// End closes a phase.
func (m *Measure) End(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phases[key]
	if !ok {
		return fmt.Errorf("time for %q not started", key)
	}
	p.end = m.now()
	return nil
}

// Duration returns how long a phase took.
func (m *Measure) Duration(key string) (d time.Duration, forced bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phases[key]
	if !ok {
		return 0, false, fmt.Errorf("no measure for %q", key)
	}
	if p.end.IsZero() {
		p.end = m.now()
		p.forced = true
	}
	return p.end.Sub(p.start), p.forced, nil
}

// Total returns time since the measure was created.
func (m *Measure) Total() time.Duration {
	return m.now().Sub(m.started)
}

func (m *Measure) String() string {
	var b strings.Builder
	b.WriteString("Time results:\n")
	fmt.Fprintf(&b, "\tall: %s\n", m.Total())

	m.mu.Lock()
	keys := append([]string(nil), m.order...)
	m.mu.Unlock()

	for _, k := range keys {
		d, forced, _ := m.Duration(k)
		fmt.Fprintf(&b, "\t%s: %s", k, d)
		if forced {
			b.WriteString(" FORCED")
		}
		b.WriteString("\n")
	}
	return b.String()
}
