// Package consensus holds the stateless decision logic of a multi-agent
// conversation: building the prompts sent to the conversation manager,
// parsing structured replies into the parameter ledger, the deterministic
// alignment pass, the keyword agreement fallback, and summary rendering.
//
// Nothing here keeps state between calls. Parse failures are never errors;
// they return nil (or a PlainReply) so the caller can fall back to the next
// cheaper strategy.
package consensus
