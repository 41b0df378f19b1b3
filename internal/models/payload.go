package models

import "encoding/json"

// PartyPayload is a party's private evaluation input. It is stored only in
// the TTL-bounded blob store and handed to the evaluator; it never appears
// in the room record or in any status response.
type PartyPayload struct {
	// Conversations is the party's exported conversation history. Items are
	// either pre-parsed {role, content} messages or raw ChatGPT export
	// conversations; kept opaque here and flattened by the evaluator.
	Conversations []json.RawMessage `json:"conversations"`
	// Prompt is the party's confidential question about a compatible partner.
	Prompt string `json:"prompt"`
	// Expected is the answer the party expects from a compatible partner.
	Expected string `json:"expected"`
}
