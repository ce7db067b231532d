// Package audit keeps a local trail of enseal transfers.
//
// Every share, receive and listen, and every change to the trust store, is
// appended to a JSON Lines file in the user data directory:
//
//	$XDG_DATA_HOME/enseal/audit.jsonl
//
// Entries carry metadata only: operation, mode, transport, peer names,
// variable count and outcome. Secret values, wormhole codes and keys are
// never written.
//
// # Usage
//
//	entry := audit.LogWithUser(audit.OpShare)
//	entry.Transport = "wormhole"
//	entry.Count = len(secrets)
//	audit.Log(entry)
//
// # Failure Handling
//
// Audit logging is best-effort. If writing fails the operation continues.
// Malformed lines are skipped when reading, to tolerate partial writes.
package audit
