package statistics

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

type Kind string

const (
	KindSpoofed        Kind = "spoofed"
	KindOverridden     Kind = "overridden"
	KindOverrideFailed Kind = "override_failed"
	KindPassThrough    Kind = "passthrough"
)

// Record is one intercepted request.
type Record struct {
	Kind   Kind
	Host   string
	Path   string
	Detail string
}

// Entry aggregates the records of one kind and path.
type Entry struct {
	Kind     Kind      `json:"kind"`
	Host     string    `json:"host"`
	Path     string    `json:"path"`
	Count    int       `json:"count"`
	Detail   string    `json:"detail,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

// Recorder collects records off the request path. A nil *Recorder is valid
// and drops everything.
type Recorder struct {
	recordAddChan chan *Record
	dumpFile      string
	dumpInterval  time.Duration

	mu      sync.RWMutex
	entries map[string]*Entry
	totals  map[Kind]int
}

func New(dumpFile string, dumpInterval time.Duration) *Recorder {
	if dumpInterval <= 0 {
		dumpInterval = 5 * time.Second
	}
	return &Recorder{
		recordAddChan: make(chan *Record, 500),
		dumpFile:      dumpFile,
		dumpInterval:  dumpInterval,
		entries:       make(map[string]*Entry, 100),
		totals:        make(map[Kind]int, 4),
	}
}

// Run consumes records and dumps them periodically until ctx is done.
func (r *Recorder) Run(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.dumpInterval)
		defer ticker.Stop()

		for {
			select {
			case record := <-r.recordAddChan:
				r.Add(record)
			case <-ticker.C:
				r.Dump()
			case <-ctx.Done():
				r.Dump()
				return
			}
		}
	}()
}

// AddRecord queues record without blocking. Records are dropped when the
// queue is full.
func (r *Recorder) AddRecord(record *Record) {
	if r == nil || record == nil {
		return
	}
	select {
	case r.recordAddChan <- record:
	default:
		slog.Debug("Statistics queue full, record dropped", slog.String("kind", string(record.Kind)))
	}
}

func (r *Recorder) Add(record *Record) {
	if r == nil {
		return
	}
	key := string(record.Kind) + " " + record.Host + record.Path

	r.mu.Lock()
	defer r.mu.Unlock()

	r.totals[record.Kind]++
	if e, exists := r.entries[key]; exists {
		e.Count++
		e.Detail = record.Detail
		e.LastSeen = time.Now()
		return
	}
	r.entries[key] = &Entry{
		Kind:     record.Kind,
		Host:     record.Host,
		Path:     record.Path,
		Count:    1,
		Detail:   record.Detail,
		LastSeen: time.Now(),
	}
}

type Snapshot struct {
	Totals  map[Kind]int `json:"totals"`
	Entries []Entry      `json:"entries"`
}

// Snapshot returns the totals and the entries, most frequent first.
func (r *Recorder) Snapshot() Snapshot {
	snap := Snapshot{Totals: map[Kind]int{}, Entries: []Entry{}}
	if r == nil {
		return snap
	}

	r.mu.RLock()
	for k, v := range r.totals {
		snap.Totals[k] = v
	}
	for _, e := range r.entries {
		snap.Entries = append(snap.Entries, *e)
	}
	r.mu.RUnlock()

	sort.SliceStable(snap.Entries, func(i, j int) bool {
		if snap.Entries[i].Count != snap.Entries[j].Count {
			return snap.Entries[i].Count > snap.Entries[j].Count
		}
		return snap.Entries[i].Path < snap.Entries[j].Path
	})
	return snap
}

func (r *Recorder) Dump() {
	if r == nil || r.dumpFile == "" {
		return
	}
	f, err := os.Create(r.dumpFile)
	if err != nil {
		slog.Error("os.Create", slog.Any("error", err))
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("os.File.Close", slog.Any("error", err))
		}
	}()

	w := bufio.NewWriter(f)
	defer func() {
		if err := w.Flush(); err != nil {
			slog.Error("bufio.Writer.Flush", slog.Any("error", err))
		}
	}()

	for _, e := range r.Snapshot().Entries {
		_, err := fmt.Fprintf(w, "%s %s%s %d %s\n", e.Kind, e.Host, e.Path, e.Count, e.Detail)
		if err != nil {
			slog.Error("Dump fmt.Fprintf", slog.Any("error", err))
			return
		}
	}
}
