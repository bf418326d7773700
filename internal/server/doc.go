// Package server exposes code verification over HTTP.
//
// Browsers first call GET /api/session, which sets the bcv_session cookie
// and returns a CSRF token. Every mutating call carries that token; a
// missing or wrong token is answered with status 419.
//
// # Endpoints
//
//	GET  /api/health        {"status":"ok","version":"..."}
//	GET  /api/session       {"csrf_token":"..."}
//	POST /api/verify        one code, answered with the result JSON
//	POST /api/auto-extract  credentials from the local browser's cookie jar
//	GET  /api/batch         websocket streaming one result per code
//
// Credentials missing from a request are taken from the session (set by a
// successful auto-extract) and then from config.Settings. Engines are
// cached per session, crumb and client_id, and closed after 30 idle
// minutes or on Shutdown.
//
// # Usage
//
//	srv := server.New(settings, logger)
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
