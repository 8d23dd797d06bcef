/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package msgbus

import "sync"

// Event and Strand implement the MT (microtask) style of §4.3: operations
// manipulate Events and Strands instead of messages directly. Design notes
// (spec.md §9 "Coroutines / continuations") call Strands the correct
// primitive to retain; classic blocking calls are derived by wrapping a
// Strand in a condition-variable wait, which is exactly what Event.Wait
// below does.
type Event struct {
	mu      sync.Mutex
	cond    *sync.Cond
	done    bool
	msg     *Message
	err     error
	actions []Action
}

// Action is a unit of continuation work queued on an Event -- e.g. "send
// the next message", "process the response" (spec.md GLOSSARY "Action").
// kind documents intent only (NPWork vs NPComm); any worker may run either.
type ActionKind uint8

const (
	NPWork ActionKind = iota
	NPComm
)

type Action struct {
	Kind ActionKind
	Run  func(msg *Message, err error)
}

func NewEvent() *Event {
	e := &Event{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Resolve completes the event exactly once; subsequent calls are no-ops,
// matching the "exactly one completion" shape of a two-way request/response.
func (e *Event) Resolve(msg *Message, err error) {
	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return
	}
	e.done = true
	e.msg, e.err = msg, err
	actions := e.actions
	e.actions = nil
	e.mu.Unlock()
	e.cond.Broadcast()
	for _, a := range actions {
		a.Run(msg, err)
	}
}

// Then registers a to run when the event resolves -- immediately, inline,
// if it already has. This is the non-blocking, any-worker-may-resume
// continuation path the MT style exists for.
func (e *Event) Then(a Action) {
	e.mu.Lock()
	if e.done {
		msg, err := e.msg, e.err
		e.mu.Unlock()
		a.Run(msg, err)
		return
	}
	e.actions = append(e.actions, a)
	e.mu.Unlock()
}

// Wait blocks the calling worker until the event resolves -- the classic
// style derived from MT per spec.md §9, used where the caller genuinely has
// nothing better to do (e.g. a synchronous processMessage(isBlocking=true)).
func (e *Event) Wait() (*Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for !e.done {
		e.cond.Wait()
	}
	return e.msg, e.err
}

func (e *Event) IsDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Strand is an ordered sequence of continuation Actions belonging to a
// single event-driven chain (spec.md GLOSSARY "Strand") -- e.g. "marshal,
// then send, then await reply, then unmarshal". Any worker can call Drain;
// no worker is pinned to a particular strand (spec.md §5 "Suspension
// points": "in this style no worker is pinned to a specific event").
type Strand struct {
	mu      sync.Mutex
	pending []Action
}

func (s *Strand) Append(a Action) {
	s.mu.Lock()
	s.pending = append(s.pending, a)
	s.mu.Unlock()
}

// Drain runs every queued action in FIFO order and clears the strand. Safe
// to call concurrently from multiple workers; each action runs exactly once.
func (s *Strand) Drain(msg *Message, err error) {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, a := range batch {
		a.Run(msg, err)
	}
}
