// Package errors provides error handling for igen.
//
// It re-exports github.com/cockroachdb/errors and adds the sentinels used to
// classify failures. Wrap the underlying error for context, then Mark it with
// one of the sentinels so callers can test it with Is:
//
//	err = errors.Mark(errors.Wrapf(err, "parsing %s", path), errors.ErrParse)
//	if errors.Is(err, errors.ErrParse) { ... }
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is          = crdb.Is
	IsAny       = crdb.IsAny
	As          = crdb.As
	Unwrap      = crdb.Unwrap
	UnwrapAll   = crdb.UnwrapAll
	GetAllHints = crdb.GetAllHints
)

// Failure classes. Each is fatal for a different scope; see the callers.
var (
	// ErrManifest marks a malformed directive or manifest entry.
	ErrManifest = New("manifest error")
	// ErrSourceMissing marks a source reference that does not exist.
	ErrSourceMissing = New("source missing")
	// ErrParse marks a source the parser could not read or parse.
	ErrParse = New("parse error")
	// ErrMalformedDeclaration marks a single declaration that cannot be described.
	ErrMalformedDeclaration = New("malformed declaration")
	// ErrRender marks a failure of the render collaborator.
	ErrRender = New("render error")
	// ErrCacheCorruption marks an unreadable build cache.
	ErrCacheCorruption = New("cache corruption")
)
