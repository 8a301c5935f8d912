package scanning

import (
	"context"
	stderrors "errors"
	"net"
	"strconv"
	"syscall"
	"time"
)

// Prober performs a single connection attempt against host:port.
// Implementations must honour ctx and must never block past its cancellation.
type Prober interface {
	Probe(ctx context.Context, host string, port int) ProbeResult
}

// ProberFunc adapts an ordinary function to the Prober interface.
type ProberFunc func(ctx context.Context, host string, port int) ProbeResult

// Probe calls f(ctx, host, port).
func (f ProberFunc) Probe(ctx context.Context, host string, port int) ProbeResult {
	return f(ctx, host, port)
}

// TCPProber attempts a full TCP handshake and closes the connection immediately.
type TCPProber struct {
	Timeout time.Duration
}

// NewTCPProber creates a TCP prober. A non-positive timeout uses DefaultProbeTimeout.
func NewTCPProber(timeout time.Duration) *TCPProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &TCPProber{Timeout: timeout}
}

// Probe dials host:port and classifies the result.
func (p *TCPProber) Probe(ctx context.Context, host string, port int) ProbeResult {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	dialer := net.Dialer{Timeout: timeout, KeepAlive: -1}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	result := ProbeResult{Port: port, Latency: time.Since(start)}

	if err == nil {
		_ = conn.Close()
		result.Outcome = OutcomeOpen
		return result
	}

	result.Err = err
	result.Outcome = classifyDialError(ctx, err)
	return result
}

// classifyDialError maps a dial failure to an Outcome.
func classifyDialError(ctx context.Context, err error) Outcome {
	if ctx.Err() != nil {
		return OutcomeCanceled
	}

	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return OutcomeUnresolved
	}

	if stderrors.Is(err, syscall.ECONNREFUSED) {
		return OutcomeRefused
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}

	if stderrors.Is(err, syscall.EHOSTUNREACH) || stderrors.Is(err, syscall.ENETUNREACH) {
		return OutcomeUnreachable
	}

	return OutcomeError
}
