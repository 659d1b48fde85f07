package client

import (
	"fmt"
	"sync"
)

// RequestState is a step in the lifecycle of one logical request.
//
//	Sent -> Completed
//	Sent -> Failed
//	Sent -> Unauthorized -> Refreshing -> Retried -> Completed | Failed
//	Unauthorized -> Failed              (login endpoint, or already retried)
//	Refreshing -> Failed                (refresh rejected; session cleared)
type RequestState string

const (
	StateSent         RequestState = "sent"
	StateUnauthorized RequestState = "unauthorized"
	StateRefreshing   RequestState = "refreshing"
	StateRetried      RequestState = "retried"
	StateCompleted    RequestState = "completed"
	StateFailed       RequestState = "failed"
)

var allowedTransitions = map[RequestState][]RequestState{
	"":                {StateSent},
	StateSent:         {StateCompleted, StateFailed, StateUnauthorized},
	StateUnauthorized: {StateRefreshing, StateFailed},
	StateRefreshing:   {StateRetried, StateFailed},
	StateRetried:      {StateCompleted, StateFailed},
}

// Terminal reports whether no further transition is possible
func (s RequestState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Transition is reported to an Observer every time a request changes state
type Transition struct {
	RequestID string
	Method    string
	Path      string
	From      RequestState
	To        RequestState
}

// Observer receives request state transitions. It must not block.
type Observer func(Transition)

// requestMachine tracks one logical request. It enforces that a request is
// refreshed and retried at most once.
type requestMachine struct {
	requestID string
	method    string
	path      string
	observer  Observer

	mu      sync.Mutex
	state   RequestState
	retried bool
	trace   []RequestState
}

func newRequestMachine(requestID, method, path string, observer Observer) *requestMachine {
	return &requestMachine{
		requestID: requestID,
		method:    method,
		path:      path,
		observer:  observer,
	}
}

func (m *requestMachine) advance(to RequestState) error {
	m.mu.Lock()
	from := m.state
	if !transitionAllowed(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("[requestMachine] illegal transition %q -> %q for %s %s", from, to, m.method, m.path)
	}
	if to == StateRefreshing {
		if m.retried {
			m.mu.Unlock()
			return fmt.Errorf("[requestMachine] %s %s already retried", m.method, m.path)
		}
		m.retried = true
	}
	m.state = to
	m.trace = append(m.trace, to)
	m.mu.Unlock()

	if m.observer != nil {
		m.observer(Transition{RequestID: m.requestID, Method: m.method, Path: m.path, From: from, To: to})
	}
	return nil
}

// canRetry reports whether a 401 may still trigger the refresh-and-retry path
func (m *requestMachine) canRetry() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.retried
}

func (m *requestMachine) current() RequestState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *requestMachine) history() []RequestState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RequestState(nil), m.trace...)
}

func transitionAllowed(from, to RequestState) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
