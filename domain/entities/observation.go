package entities

// Observation is raw state read back from a page after an operation.
// The normalizer turns it into a platform-shaped payload.
type Observation interface {
	observation()
}

// ProfileObservation - scraped profile fields, counts kept as display text
type ProfileObservation struct {
	ID        string
	Username  string
	Name      string
	Bio       string
	Followers string
	Following string
	Posts     string
	Likes     string
	URL       string
}

// ContentObservation - one post, tweet or video as seen on the page
type ContentObservation struct {
	ID        string
	URL       string
	Text      string
	Author    string
	Likes     string
	Comments  string
	Reposts   string
	Views     string
	Timestamp string
}

// PostObservation - result of publishing content
type PostObservation struct {
	ID     string
	URL    string
	Thread []string
}

// ToggleObservation - like/follow/repost state after the action
type ToggleObservation struct {
	Operation Operation
	Target    string
	State     bool
	Changed   bool
}

// CommentObservation - a submitted comment
type CommentObservation struct {
	ContentID string
	Text      string
}

// MessageObservation - a delivered direct message
type MessageObservation struct {
	Recipient string
	Text      string
}

// ListObservation - collected content references in page order
type ListObservation struct {
	Source    string
	Items     []ContentObservation
	Scrolls   int
	Exhausted bool
}

// DeleteObservation - removed content
type DeleteObservation struct {
	ContentID string
}

func (ProfileObservation) observation() {}
func (ContentObservation) observation() {}
func (PostObservation) observation() {}
func (ToggleObservation) observation() {}
func (CommentObservation) observation() {}
func (MessageObservation) observation() {}
func (ListObservation) observation() {}
func (DeleteObservation) observation() {}
