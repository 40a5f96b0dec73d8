// Package domain contains the core entities of the batch image pipeline:
// requests and their lifecycle status, parsed rows, and the per-row results
// that are persisted once a batch has been processed. It is independent of
// any storage or transport mechanism.
package domain
