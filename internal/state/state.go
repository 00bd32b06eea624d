// Package state holds the two user-controlled intercept flags.
package state

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Override states. Claimed is held while one paint request is being
// rewritten, so no other request can consume the same arm.
const (
	OverrideDisarmed int32 = iota
	OverrideArmed
	OverrideClaimed
)

// Observer receives display updates whenever a flag changes.
type Observer interface {
	OnSpoofToggle(enabled bool)
	OnOverrideArm(armed bool)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	SpoofToggle func(enabled bool)
	OverrideArm func(armed bool)
}

func (o ObserverFuncs) OnSpoofToggle(enabled bool) {
	if o.SpoofToggle != nil {
		o.SpoofToggle(enabled)
	}
}

func (o ObserverFuncs) OnOverrideArm(armed bool) {
	if o.OverrideArm != nil {
		o.OverrideArm(armed)
	}
}

type InterceptState struct {
	spoof    atomic.Bool
	override atomic.Int32

	mu        sync.Mutex
	nextID    int
	observers map[int]Observer
}

func New(spoofEnabled bool) *InterceptState {
	s := &InterceptState{observers: make(map[int]Observer)}
	s.spoof.Store(spoofEnabled)
	return s
}

type Snapshot struct {
	SpoofEnabled  bool `json:"spoof_enabled"`
	OverrideArmed bool `json:"override_armed"`
	// OverrideBusy is true while a paint request is being rewritten.
	OverrideBusy bool `json:"override_busy"`
}

func (s *InterceptState) Snapshot() Snapshot {
	o := s.override.Load()
	return Snapshot{
		SpoofEnabled:  s.spoof.Load(),
		OverrideArmed: o != OverrideDisarmed,
		OverrideBusy:  o == OverrideClaimed,
	}
}

func (s *InterceptState) SpoofEnabled() bool {
	return s.spoof.Load()
}

// ToggleSpoof flips the spoof flag and returns the new value.
func (s *InterceptState) ToggleSpoof() bool {
	for {
		old := s.spoof.Load()
		if s.spoof.CompareAndSwap(old, !old) {
			slog.Info("Tile spoofing toggled", slog.Bool("enabled", !old))
			s.notifySpoof(!old)
			return !old
		}
	}
}

func (s *InterceptState) SetSpoof(enabled bool) {
	if s.spoof.Swap(enabled) != enabled {
		slog.Info("Tile spoofing toggled", slog.Bool("enabled", enabled))
		s.notifySpoof(enabled)
	}
}

// OverrideArmed reports whether the next paint request will be rewritten.
// A claimed override still counts as armed.
func (s *InterceptState) OverrideArmed() bool {
	return s.override.Load() != OverrideDisarmed
}

// ArmOverride arms the override when confirmed is true. An unconfirmed
// request disarms it, matching a dismissed confirmation dialog. It returns
// whether the override is armed afterwards.
func (s *InterceptState) ArmOverride(confirmed bool) bool {
	if !confirmed {
		s.DisarmOverride()
		return false
	}
	if s.override.CompareAndSwap(OverrideDisarmed, OverrideArmed) {
		slog.Info("Paint override armed")
		s.notifyOverride(true)
	}
	return true
}

func (s *InterceptState) DisarmOverride() {
	if s.override.Swap(OverrideDisarmed) != OverrideDisarmed {
		slog.Info("Paint override disarmed")
		s.notifyOverride(false)
	}
}

// ClaimOverride moves Armed to Claimed. Only one caller can win until the
// claim is released or consumed.
func (s *InterceptState) ClaimOverride() bool {
	return s.override.CompareAndSwap(OverrideArmed, OverrideClaimed)
}

// ReleaseOverride returns a failed claim to Armed. A disarm that happened
// during the claim is kept.
func (s *InterceptState) ReleaseOverride() {
	s.override.CompareAndSwap(OverrideClaimed, OverrideArmed)
}

// ConsumeOverride finishes a successful claim and disarms the override.
func (s *InterceptState) ConsumeOverride() {
	if s.override.CompareAndSwap(OverrideClaimed, OverrideDisarmed) {
		slog.Info("Paint override consumed")
		s.notifyOverride(false)
	}
}

// Subscribe registers o and returns a function removing it.
func (s *InterceptState) Subscribe(o Observer) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = o
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

func (s *InterceptState) snapshotObservers() []Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		list = append(list, o)
	}
	return list
}

func (s *InterceptState) notifySpoof(enabled bool) {
	for _, o := range s.snapshotObservers() {
		o.OnSpoofToggle(enabled)
	}
}

func (s *InterceptState) notifyOverride(armed bool) {
	for _, o := range s.snapshotObservers() {
		o.OnOverrideArm(armed)
	}
}

func (s *InterceptState) LogValue() slog.Value {
	snap := s.Snapshot()
	return slog.GroupValue(
		slog.Bool("spoof", snap.SpoofEnabled),
		slog.Bool("override", snap.OverrideArmed),
	)
}
