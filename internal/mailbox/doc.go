// Package mailbox implements the relay's in-memory channel registry.
//
// The Registry owns every channel. Connection handlers never hold a
// reference to channel state: they hold a channel id and the Side they
// were assigned by Open, and every operation goes through the Registry.
//
// # Lifecycle
//
//	Open(create) -> Pending -> Open(join) -> Paired -> Close -> removed
//
// A channel admits at most two participants. It is removed from the
// registry the moment it reaches a terminal reason (consumed, expired, or
// aborted), and its id is remembered in a bounded tombstone cache so late
// joiners learn why the channel is gone instead of silently creating a new
// one under a used id.
//
// Each channel carries its own TTL timer. A periodic sweep backs the
// timers up, so no channel outlives its deadline by more than one sweep
// interval even if a timer is missed.
//
// Waiting for a peer, or for the next message, is a select on per-channel
// Go channels; no goroutine is dedicated to a waiting channel.
package mailbox
