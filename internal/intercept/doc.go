// Package intercept implements the per-request interception and dispatch
// logic of the proxy: each inbound exchange is either satisfied from the
// active tape or forwarded to the real origin and optionally recorded.
package intercept
