// Package wormhole implements the anonymous, code-based transfer.
//
// The sender draws a code such as "4821-copper-falcon". The nameplate
// (4821) names the relay channel; the whole code is the password for a
// SPAKE2 exchange bound to that channel. After the exchange each side
// proves it holds the same key, and only then does the sender transmit
// the payload sealed under a key derived from it. A failed proof destroys
// the channel, so every code allows exactly one guess.
//
// Message sequence over a paired channel:
//
//	S -> R  X                      SPAKE2 message
//	R -> S  Y || confirm(R)
//	S -> R  confirm(S)
//	S -> R  seal(payload)          only after confirm(R) verified
//	R -> *  close(consumed)        only after confirm(S) and seal verified
package wormhole
