// Package progress models pipeline progress snapshots and broadcasts them
// from a single writer to any number of readers.
//
// Delivery is best-effort and latest-state-wins: Publish never blocks, and a
// slow subscriber loses intermediate snapshots but always observes the most
// recent one. Subscribe returns an unsubscribe function; Close releases
// every remaining subscription when the owning job terminates.
package progress
