// details.go - Note details: a note announced before it exists.

package note

// NoteDetails is a note's assets and recipient without metadata. A party
// pre-registers details (plus a tag) for a note it expects a counterparty
// to create, so its sync recognizes the note on arrival instead of treating
// it as opaque.
type NoteDetails struct {
	Assets    NoteAssets    `json:"assets"`
	Recipient NoteRecipient `json:"recipient"`
}

// ID returns the ledger identity the eventual note will have. Metadata does
// not contribute to a note id, so details alone determine it.
func (d NoteDetails) ID() NoteID {
	return computeNoteID(d.Assets, d.Recipient)
}
