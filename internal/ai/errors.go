package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

type ErrorKind string

const (
	KindUnreachable   ErrorKind = "unreachable"
	KindUnauthorized  ErrorKind = "unauthorized"
	KindModelNotFound ErrorKind = "model_not_found"
	KindUpstream      ErrorKind = "upstream"
	KindTimeout       ErrorKind = "timeout"
)

// ProviderError is the only error type adapters return from Generate and Probe.
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Reason   string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ProviderError) HTTPStatusCode() int {
	return e.Status
}

func newProviderError(kind ErrorKind, provider, reason string, status int, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Reason: reason, Status: status, Err: err}
}

// KindOf reports the ProviderError kind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return "", false
	}
	return pe.Kind, true
}

// transportError classifies a failure from http.Client.Do.
func transportError(provider string, err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newProviderError(KindTimeout, provider, "request deadline exceeded", 0, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return newProviderError(KindTimeout, provider, "request timed out", 0, err)
	}
	// url.Error carries the full request URL; keep only the cause.
	var ue *url.Error
	if errors.As(err, &ue) {
		err = ue.Err
	}
	return newProviderError(KindUnreachable, provider, "connection failed", 0, err)
}

func isModelMissing(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "model") && strings.Contains(m, "not found")
}
