// Package httputil holds the JSON response and request helpers shared by
// the API handlers.
//
// Handlers go through these helpers rather than writing to the
// http.ResponseWriter directly, which keeps the success envelope and the
// error shape identical across every endpoint.
package httputil
