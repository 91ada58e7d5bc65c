package models

// Entry is one catalogued meme image together with the keywords that trigger it.
// Entries are owned by the catalog and must not be mutated after it is built.
type Entry struct {
	// ID is the image path relative to the catalog root, slash separated.
	ID          string   `json:"id"`
	Path        string   `json:"path"`
	File        string   `json:"file"`
	Contributor string   `json:"contributor,omitempty"`
	Keywords    []string `json:"keywords"`
}

// HasKeyword reports whether kw is one of the entry's trigger keywords.
func (e *Entry) HasKeyword(kw string) bool {
	for _, k := range e.Keywords {
		if k == kw {
			return true
		}
	}
	return false
}

// Message is an inbound chat message.
type Message struct {
	ChannelID  string `json:"channel_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name,omitempty"`
	Text       string `json:"text"`
}

// ReactionFactor is +1 when a reaction is added and -1 when it is removed.
type ReactionFactor int

const (
	ReactionAdded   ReactionFactor = 1
	ReactionRemoved ReactionFactor = -1
)

// IsValid returns true if the factor is +1 or -1.
func (f ReactionFactor) IsValid() bool {
	return f == ReactionAdded || f == ReactionRemoved
}

// ReactionEvent is a reaction added to or removed from a message.
type ReactionEvent struct {
	PostID string         `json:"post_id"`
	Emote  string         `json:"emote"`
	Factor ReactionFactor `json:"factor"`
	UserID string         `json:"user_id,omitempty"`
}

// PostKind distinguishes automatic reactions from explicitly requested memes.
type PostKind string

const (
	PostAuto     PostKind = "auto"
	PostExplicit PostKind = "explicit"
)

// WeightInfo is an entry's learned weight and the resulting post chance.
type WeightInfo struct {
	EntryID     string  `json:"entry_id"`
	Weight      int64   `json:"weight"`
	Probability float64 `json:"probability"`
}
