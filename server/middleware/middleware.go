// Package middleware holds the net/http middleware wrapped around the API.
package middleware

import (
	"net/http"
	"slices"
)

// Middleware decorates an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain composes mws into one Middleware; mws[0] sees the request first.
func Chain(mws ...Middleware) Middleware {
	return func(h http.Handler) http.Handler {
		for _, mw := range slices.Backward(mws) {
			h = mw(h)
		}
		return h
	}
}
