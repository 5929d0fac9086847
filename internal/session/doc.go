// Package session implements the widget's conversation session manager.
//
// # State machine
//
// A session moves between three states:
//
//	Idle    - widget never opened; no conversation id assigned
//	Active  - conversation id assigned; sends allowed
//	Sending - one outbound request in flight; further sends rejected
//
// OpenWidget moves Idle to Active with a fresh conversation id and clears
// the unread count. Send moves Active to Sending and back. NewConversation
// and SelectConversation rebind the displayed log without leaving Active.
//
// The single-in-flight rule is enforced here, at the controller, not by a
// disabled input field: Send from any state but Active is rejected, so the
// invariant holds for programmatic clients too.
//
// # Persistence
//
// The controller drives an explicit persistence lifecycle through an
// injected Repository: Init loads the snapshot once, and every transition
// that touches the store saves the entire store. Saves are whole-store, so
// store size bounds save cost.
//
// # Failure posture
//
// Nothing here is fatal. A failed outbound call becomes one synthetic agent
// message; invalid input is rejected as a no-op; a failed save is logged.
package session
