package activity

// OrderedCollection is what a GET on an inbox returns.
// Inbox contents are never listed, so it is always empty.
type OrderedCollection struct {
	Context      string        `json:"@context,omitempty"`
	Type         string        `json:"type"`
	ID           string        `json:"id"`
	TotalItems   int           `json:"totalItems"`
	OrderedItems []interface{} `json:"orderedItems"`
}
