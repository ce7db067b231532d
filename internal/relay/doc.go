// Package relay is the client side of the relay protocol.
//
// A Conn is one websocket to the relay carrying one channel. Callers dial,
// open a channel, wait for the peer and then exchange data frames in
// strict alternation. Every blocking call takes a context; cancelling it
// tears the connection down, which the relay treats as an abort.
package relay
