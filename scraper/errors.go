package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

var errTooManyRedirects = errors.New("stopped after 10 redirects")

// ErrClient indicates a terminal non-200 response that is not a server error.
type ErrClient struct {
	Status int
	Err    error
}

func (e ErrClient) Error() string {
	return fmt.Errorf("client_error %d: %w", e.Status, e.Err).Error()
}

func (e ErrClient) Unwrap() error {
	return e.Err
}

// ErrServer indicates a 5xx response. It is retried.
type ErrServer struct {
	Status int
	Err    error
}

func (e ErrServer) Error() string {
	return fmt.Errorf("server_error %d: %w", e.Status, e.Err).Error()
}

func (e ErrServer) Unwrap() error {
	return e.Err
}

// Network failure kinds. They only drive logging; every kind is retried.
const (
	NetworkDNS     = "dns"
	NetworkTimeout = "timeout"
	NetworkRefused = "refused"
	NetworkOther   = "other"
)

// ErrNetwork indicates a transport failure before any response was received.
type ErrNetwork struct {
	Kind string
	Err  error
}

func (e ErrNetwork) Error() string {
	return fmt.Errorf("network_%s: %w", e.Kind, e.Err).Error()
}

func (e ErrNetwork) Unwrap() error {
	return e.Err
}

// ErrRedirectLoop indicates the redirect limit was hit. It is not retried.
type ErrRedirectLoop struct {
	Err error
}

func (e ErrRedirectLoop) Error() string {
	return fmt.Errorf("redirect_loop: %w", e.Err).Error()
}

func (e ErrRedirectLoop) Unwrap() error {
	return e.Err
}

func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errTooManyRedirects) {
		return ErrRedirectLoop{Err: err}
	}
	return ErrNetwork{Kind: networkKind(err), Err: err}
}

func networkKind(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return NetworkTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NetworkTimeout
	}

	msg := strings.ToLower(err.Error())
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || strings.Contains(msg, "no such host") || strings.Contains(msg, "name or service not known") {
		return NetworkDNS
	}
	if errors.Is(err, syscall.ECONNREFUSED) || strings.Contains(msg, "refused") {
		return NetworkRefused
	}
	return NetworkOther
}

func isRetryable(err error) bool {
	var server ErrServer
	if errors.As(err, &server) {
		return true
	}
	var network ErrNetwork
	return errors.As(err, &network)
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var redirect ErrRedirectLoop
	if errors.As(err, &redirect) {
		return "redirect_loop"
	}
	var client ErrClient
	if errors.As(err, &client) {
		return "client_error"
	}
	var server ErrServer
	if errors.As(err, &server) {
		return "server_error"
	}
	var network ErrNetwork
	if errors.As(err, &network) {
		return "network_" + network.Kind
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "other"
}
