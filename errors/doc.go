// Package errors provides standardized error handling for the relay's
// components.
//
// # Overview
//
// The package implements a three-class error classification: Transient
// (temporary, retryable), Invalid (bad input, non-retryable), and Fatal
// (unrecoverable, stop processing). Classification lets callers decide
// about retries and HTTP status mapping without matching error strings.
//
// It integrates with Go's standard error handling: errors.Is, errors.As,
// and wrapping chains all work across classified errors.
//
// # Quick Start
//
// Return standard error variables for known conditions:
//
//	if t == nil {
//	    return errors.ErrTenantNotFound
//	}
//
// Wrap errors with component context:
//
//	if err := store.CreateTenant(ctx, t); err != nil {
//	    return errors.Wrap(err, "tenant", "CreateTenant", "persist tenant")
//	}
//
// Check classification for retry logic:
//
//	if errors.IsTransient(err) {
//	    return retry.Do(ctx, retry.DefaultConfig(), op)
//	}
//
// The gateway package maps the standard variables and classes onto HTTP
// statuses; nothing outside it should inspect error text.
package errors
