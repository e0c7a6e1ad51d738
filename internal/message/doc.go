// Package message provides the HTTP message primitives used by the
// interception layer: entity bodies with repeatable and single-use flavors,
// hop-by-hop header filtering, and outbound request construction.
package message
