package activity

// Note is the outbound representation of a stored post.
// It is also used to rebuild an object from local storage
// when the original can't be fetched any more.
type Note struct {
	Context      interface{} `json:"@context,omitempty"`
	Type         string      `json:"type"`
	ID           string      `json:"id"`
	AttributedTo string      `json:"attributedTo,omitempty"`
	InReplyTo    string      `json:"inReplyTo,omitempty"`
	Name         string      `json:"name,omitempty"`
	Summary      string      `json:"summary,omitempty"`
	Content      string      `json:"content,omitempty"`
	Sensitive    bool        `json:"sensitive,omitempty"`
	Published    string      `json:"published,omitempty"`
	Updated      string      `json:"updated,omitempty"`
	URL          string      `json:"url,omitempty"`
	To           []string    `json:"to,omitempty"`
	CC           []string    `json:"cc,omitempty"`
}
