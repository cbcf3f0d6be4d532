package p2p

import (
	"encoding/json"

	"noteswap/internal/ledger"
	"noteswap/internal/note"
)

// Message is the generic envelope for any message sent over the network.
// It allows for flexible communication of different data structures.
type Message struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	SenderID string          `json:"senderId"`
}

// OrderSubmitPayload hands a maker's proven swap transaction to a matcher.
// The maker never submits it; the matcher puts it on chain at settlement.
// The transaction travels in full, consumption preimages included, because
// the matcher settles against the swap note it creates.
type OrderSubmitPayload struct {
	SenderID string                    `json:"senderId"`
	Order    *ledger.ProvenTransaction `json:"order"`
}

// NoteHandoffPayload delivers a full note to a counterparty off-chain, for
// notes whose details never appear on the ledger.
type NoteHandoffPayload struct {
	SenderID string     `json:"senderId"`
	Note     *note.Note `json:"note"`
}

// SimpleTextMessage is a plain-text payload, mostly for diagnostics.
type SimpleTextMessage struct {
	Content string `json:"content"`
}
