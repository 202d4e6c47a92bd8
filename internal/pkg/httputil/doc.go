// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Handlers use these helpers instead of raw http.ResponseWriter calls so that
// every endpoint answers with the same JSON envelope and 5xx responses never
// carry internal error text.
package httputil
