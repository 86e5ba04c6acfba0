// Package server hosts the Fiber HTTP service that exposes the buffered image
// cache to local clients. It builds the application, attaches recovery and
// request-ID middlewares, and serves entry reads and writes under /cache/.
// Diagnostics and maintenance endpoints live under /-/ and are registered by
// the routes subpackage so that callers can opt into them explicitly.
package server
