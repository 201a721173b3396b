// Package shared holds code used across packages that belongs to no single
// domain.
//
// testutil provides a log-capturing slog handler with assertion helpers and
// builders for session file fixtures. It is imported only from tests.
package shared
