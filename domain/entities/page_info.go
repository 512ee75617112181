package entities

// PageInfo is a snapshot of the current page used for state detection
// and HTML extraction
type PageInfo struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"` // og:description or meta description
	HTML        string `json:"-"`
}
