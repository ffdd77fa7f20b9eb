package reqx

import (
	"context"
	"crypto/tls"
	"net/http/httptrace"
	"sync"
	"time"
)

// Phase identifies a stage of a request's lifecycle for timeout
// enforcement and error reporting.
type Phase string

const (
	PhaseLookup        Phase = "lookup"
	PhaseConnect       Phase = "connect"
	PhaseSecureConnect Phase = "secureConnect"
	PhaseSocket        Phase = "socket"
	PhaseSend          Phase = "send"
	PhaseResponse      Phase = "response"
	PhaseRead          Phase = "read"
	PhaseRequest       Phase = "request"
)

// phaseTimers enforces per-phase deadlines over one attempt. Each phase
// timer is armed when its phase begins and disarmed exactly once when the
// phase completes; a timer that fires first cancels the attempt context
// with a *TimeoutError naming the phase, and no later phase can fire.
type phaseTimers struct {
	mu      sync.Mutex
	cancel  context.CancelCauseFunc
	timers  map[Phase]*time.Timer
	limits  Timeouts
	stopped bool
}

func newPhaseTimers(cancel context.CancelCauseFunc, limits Timeouts) *phaseTimers {
	return &phaseTimers{
		cancel: cancel,
		timers: make(map[Phase]*time.Timer),
		limits: limits,
	}
}

func (p *phaseTimers) arm(phase Phase, d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if t, ok := p.timers[phase]; ok {
		t.Stop()
	}
	p.timers[phase] = time.AfterFunc(d, func() {
		p.fire(phase, d)
	})
}

func (p *phaseTimers) disarm(phase Phase) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.timers[phase]; ok {
		t.Stop()
		delete(p.timers, phase)
	}
}

// touchSocket re-arms the idle socket timer. Called on every byte of
// request or response traffic.
func (p *phaseTimers) touchSocket() {
	if p.limits.Socket <= 0 {
		return
	}
	p.arm(PhaseSocket, p.limits.Socket)
}

func (p *phaseTimers) fire(phase Phase, d time.Duration) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, t := range p.timers {
		t.Stop()
	}
	p.timers = nil
	p.mu.Unlock()
	p.cancel(&TimeoutError{Phase: phase, Threshold: d})
}

// stopAll disarms everything. Safe to call more than once; a timer that
// already fired wins.
func (p *phaseTimers) stopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	for _, t := range p.timers {
		t.Stop()
	}
	p.timers = nil
}

// attemptTracer wires one attempt's httptrace callbacks to both the phase
// timers and TraceInfo collection. Callbacks for phases a reused pooled
// connection skips simply never fire, so those timers are never armed.
type attemptTracer struct {
	timers *phaseTimers

	mu         sync.Mutex
	start      time.Time
	dnsStart   time.Time
	dnsDone    time.Time
	connStart  time.Time
	connDone   time.Time
	tlsStart   time.Time
	tlsDone    time.Time
	wroteReq   time.Time
	firstByte  time.Time
	connReused bool
	remoteAddr string
}

func newAttemptTracer(timers *phaseTimers) *attemptTracer {
	return &attemptTracer{timers: timers, start: time.Now()}
}

func (a *attemptTracer) clientTrace() *httptrace.ClientTrace {
	limits := a.timers.limits
	return &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			a.stamp(&a.dnsStart)
			a.timers.arm(PhaseLookup, limits.Lookup)
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			a.stamp(&a.dnsDone)
			a.timers.disarm(PhaseLookup)
		},
		ConnectStart: func(_, _ string) {
			a.stamp(&a.connStart)
			a.timers.arm(PhaseConnect, limits.Connect)
		},
		ConnectDone: func(_, _ string, _ error) {
			a.stamp(&a.connDone)
			a.timers.disarm(PhaseConnect)
		},
		TLSHandshakeStart: func() {
			a.stamp(&a.tlsStart)
			a.timers.arm(PhaseSecureConnect, limits.SecureConnect)
		},
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			a.stamp(&a.tlsDone)
			a.timers.disarm(PhaseSecureConnect)
		},
		GotConn: func(info httptrace.GotConnInfo) {
			a.mu.Lock()
			a.connReused = info.Reused
			if info.Conn != nil {
				if addr := info.Conn.RemoteAddr(); addr != nil {
					a.remoteAddr = addr.String()
				}
			}
			a.mu.Unlock()
			a.timers.arm(PhaseSend, limits.Send)
			a.timers.touchSocket()
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			a.stamp(&a.wroteReq)
			a.timers.disarm(PhaseSend)
			a.timers.arm(PhaseResponse, limits.Response)
			a.timers.touchSocket()
		},
		GotFirstResponseByte: func() {
			a.stamp(&a.firstByte)
			a.timers.disarm(PhaseResponse)
			a.timers.arm(PhaseRead, limits.Read)
			a.timers.touchSocket()
		},
	}
}

func (a *attemptTracer) stamp(t *time.Time) {
	a.mu.Lock()
	*t = time.Now()
	a.mu.Unlock()
}

func (a *attemptTracer) traceInfo() *TraceInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	info := &TraceInfo{
		Total:      time.Since(a.start),
		ConnReused: a.connReused,
		RemoteAddr: a.remoteAddr,
	}
	if !a.dnsStart.IsZero() && !a.dnsDone.IsZero() {
		info.DNSLookup = a.dnsDone.Sub(a.dnsStart)
	}
	if !a.connStart.IsZero() && !a.connDone.IsZero() {
		info.Connect = a.connDone.Sub(a.connStart)
	}
	if !a.tlsStart.IsZero() && !a.tlsDone.IsZero() {
		info.TLSHandshake = a.tlsDone.Sub(a.tlsStart)
	}
	if !a.wroteReq.IsZero() && !a.firstByte.IsZero() {
		info.TimeToFirstByte = a.firstByte.Sub(a.wroteReq)
	}
	return info
}
