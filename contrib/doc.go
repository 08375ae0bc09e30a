// Package contrib provides additional functionality and utilities
// for the techu search proxy.
//
// Everything in this package is intended to extend the core techu
// package with features that are not part of the core library: an HTTP
// surface, testing utilities and similar contributions.
//
// Note that this package is outside of the backward compatibility guarantees
// provided by the core techu package. Changes to this package may
// introduce breaking changes without following semantic versioning.
//
// [github.com/techu/techu/contrib/techuhttp] serves a Proxy over HTTP with
// gorilla/mux routes for mutations, searches and excerpts.
// [github.com/techu/techu/contrib/testenv] wires a Proxy to in-process
// collaborators, or to a real Redis and searchd, for tests.
package contrib
