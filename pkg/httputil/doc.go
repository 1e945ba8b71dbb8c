// Package httputil holds the JSON response helpers, request parsing helpers
// and generic middleware shared by the HTTP handlers.
//
// Every error body has the shape {"detail": "..."}.
package httputil
