package yahoo

import (
	crerr "github.com/cockroachdb/errors"
)

// Error categories callers branch on. Configuration errors mean the
// process cannot start, authentication failures survived the refresh and
// session reset escalation, request failures cover everything the
// provider or network did wrong, and parse degradation marks payloads we
// could fetch but not fully understand.
var (
	ErrConfiguration  = crerr.New("yahoo configuration error")
	ErrAuthentication = crerr.New("yahoo authentication failure")
	ErrRequest        = crerr.New("yahoo request failure")
	ErrParseDegraded  = crerr.New("yahoo payload partially understood")
)

var errYahooTransient = crerr.New("yahoo transient failure")
