package extract

import "errors"

var (
	// ErrSourceUnavailable means the cookie source could not be used at all:
	// no browser profiles were found, or the browser failed to launch.
	ErrSourceUnavailable = errors.New("cookie source unavailable")

	// ErrCookiesNotFound means profiles were read but none held all of
	// client_id, session and identity.
	ErrCookiesNotFound = errors.New("bandcamp cookies not found")

	// ErrLoginTimeout means the driven browser never showed a logged-in session.
	ErrLoginTimeout = errors.New("login not detected in time")

	// ErrMissingCookies means crumb extraction was attempted without
	// client_id and session.
	ErrMissingCookies = errors.New("client_id and session are required")

	// ErrCrumbNotFound means the fetched page carried no crumb.
	ErrCrumbNotFound = errors.New("crumb not found")
)
