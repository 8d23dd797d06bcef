// Package runlevel implements the distributed bring-up/tear-down state
// machine of spec.md §4.7: an ordered sequence of runlevels, a two- (or,
// for USER_OK, three-) phase transition protocol every component honors,
// and the cross-PD shutdown barrier.
/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package runlevel

import (
	"sync"

	"github.com/open-ocr/ocr-core/cmn/nlog"
)

// Level enumerates spec.md §4.7's ordering:
// CONFIG_PARSE < NETWORK_OK < PD_OK < MEMORY_OK < GUID_OK < COMPUTE_OK < USER_OK.
type Level uint8

const (
	ConfigParse Level = iota
	NetworkOK
	PdOK
	MemoryOK
	GuidOK
	ComputeOK
	UserOK
	numLevels
)

func (l Level) String() string {
	switch l {
	case ConfigParse:
		return "CONFIG_PARSE"
	case NetworkOK:
		return "NETWORK_OK"
	case PdOK:
		return "PD_OK"
	case MemoryOK:
		return "MEMORY_OK"
	case GuidOK:
		return "GUID_OK"
	case ComputeOK:
		return "COMPUTE_OK"
	case UserOK:
		return "USER_OK"
	default:
		return "UNKNOWN"
	}
}

// Direction of a transition.
type Direction uint8

const (
	BringUp Direction = iota
	TearDown
)

func (d Direction) String() string {
	if d == TearDown {
		return "TEAR_DOWN"
	}
	return "BRING_UP"
}

// phaseCount returns how many phases a level's transition has: every level
// has 2, except USER_OK's tear-down, which has 3 to accommodate the
// distributed shutdown barrier (spec.md §4.7).
func phaseCount(l Level, dir Direction) int {
	if l == UserOK && dir == TearDown {
		return 3
	}
	return 2
}

// Component is implemented by every subsystem participating in the
// lifecycle (spec.md §4.7: "every component exposes switchRunlevel").
// callback is invoked once the component has completed its part of this
// phase, letting the state machine proceed asynchronously rather than
// block a single goroutine through every component's work.
type Component interface {
	SwitchRunlevel(level Level, dir Direction, phase int, callback func(error))
}

// Machine drives one PD's components through the runlevel sequence.
type Machine struct {
	mu         sync.Mutex
	self       string // PD name, for logging only
	components []Component
	current    Level

	barrier *ShutdownBarrier
}

func NewMachine(self string, neighborCount int) *Machine {
	return &Machine{
		self:    self,
		current: ConfigParse,
		barrier: NewShutdownBarrier(neighborCount),
	}
}

func (m *Machine) Register(c Component) {
	m.mu.Lock()
	m.components = append(m.components, c)
	m.mu.Unlock()
}

// BringUpTo drives the machine forward from its current level up to and
// including target, one level and phase at a time; a PD reaches level P+1
// only once every component has completed every phase of level P (spec.md
// §4.7).
func (m *Machine) BringUpTo(target Level) error {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()
	for lvl := cur + 1; lvl <= target; lvl++ {
		if err := m.runLevel(lvl, BringUp); err != nil {
			return err
		}
		m.mu.Lock()
		m.current = lvl
		m.mu.Unlock()
		nlog.Infof("runlevel[%s]: reached %s", m.self, lvl)
	}
	return nil
}

// TearDownFrom drives the machine backward from its current level down to
// (but not below) target.
func (m *Machine) TearDownFrom(target Level) error {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()
	for lvl := cur; lvl > target; lvl-- {
		if lvl == UserOK {
			if err := m.tearDownUserOK(); err != nil {
				return err
			}
		} else if err := m.runLevel(lvl, TearDown); err != nil {
			return err
		}
		m.mu.Lock()
		m.current = lvl - 1
		m.mu.Unlock()
		nlog.Infof("runlevel[%s]: descended past %s", m.self, lvl)
	}
	return nil
}

func (m *Machine) runLevel(lvl Level, dir Direction) error {
	n := phaseCount(lvl, dir)
	for phase := 0; phase < n; phase++ {
		if err := m.runPhase(lvl, dir, phase); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) runPhase(lvl Level, dir Direction, phase int) error {
	m.mu.Lock()
	components := append([]Component(nil), m.components...)
	m.mu.Unlock()

	var wg sync.WaitGroup
	errs := make(chan error, len(components))
	for _, c := range components {
		wg.Add(1)
		c.SwitchRunlevel(lvl, dir, phase, func(err error) {
			defer wg.Done()
			if err != nil {
				errs <- err
			}
		})
	}
	wg.Wait()
	close(errs)
	nlog.Infof("runlevel[%s]: %s %v phase %d complete", m.self, lvl, dir, phase)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// tearDownUserOK runs USER_OK's first two phases normally, then blocks on
// the distributed shutdown barrier before running the third (spec.md
// §4.7: "the PD that receives the last ack... resumes the base runlevel
// machine, which finishes USER_OK tear-down").
func (m *Machine) tearDownUserOK() error {
	if err := m.runPhase(UserOK, TearDown, 0); err != nil {
		return err
	}
	if err := m.runPhase(UserOK, TearDown, 1); err != nil {
		return err
	}
	m.barrier.InitiateLocal()
	m.barrier.Wait()
	return m.runPhase(UserOK, TearDown, 2)
}

// Current reports the runlevel reached so far.
func (m *Machine) Current() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Barrier exposes the shutdown barrier so the comm/pd layer can feed it
// incoming MGT_RL_NOTIFY acks.
func (m *Machine) Barrier() *ShutdownBarrier { return m.barrier }
