// Package tape provides the recording side of the proxy: named tapes holding
// request/response interactions, the deck that tracks which tape is inserted,
// and pluggable stores for tape persistence.
package tape
