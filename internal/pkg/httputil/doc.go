// Package httputil holds the JSON response helpers shared by the HTTP
// handlers, including the mapping from domain error kinds to status codes.
package httputil
