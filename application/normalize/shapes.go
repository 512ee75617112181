package normalize

// TweetMetrics - engagement counts as rendered; abbreviated values such as
// "1.2K" are passed through
type TweetMetrics struct {
	LikeCount       string `json:"like_count"`
	RetweetCount    string `json:"retweet_count"`
	ReplyCount      string `json:"reply_count"`
	ImpressionCount string `json:"impression_count,omitempty"`
}

// Tweet is the Twitter content shape
type Tweet struct {
	ID             string       `json:"id"`
	Text           string       `json:"text"`
	AuthorUsername string       `json:"author_username,omitempty"`
	URL            string       `json:"url,omitempty"`
	CreatedAt      string       `json:"created_at,omitempty"`
	PublicMetrics  TweetMetrics `json:"public_metrics"`
}

// UserMetrics - profile counts as rendered
type UserMetrics struct {
	FollowersCount string `json:"followers_count"`
	FollowingCount string `json:"following_count"`
	TweetCount     string `json:"tweet_count,omitempty"`
}

// User is the Twitter profile shape
type User struct {
	ID            string      `json:"id"`
	Username      string      `json:"username"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	URL           string      `json:"url,omitempty"`
	PublicMetrics UserMetrics `json:"public_metrics"`
}

// Profile is the profile shape of every other platform
type Profile struct {
	Username   string `json:"username"`
	ProfileURL string `json:"profileUrl"`
	Name       string `json:"name"`
	Bio        string `json:"bio"`
	Followers  string `json:"followers"`
	Following  string `json:"following"`
	Posts      string `json:"posts,omitempty"`
	Likes      string `json:"likes,omitempty"`
}

// Content - a single post, video or update
type Content struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Text      string `json:"text"`
	Author    string `json:"author,omitempty"`
	Likes     string `json:"likes,omitempty"`
	Comments  string `json:"comments,omitempty"`
	Shares    string `json:"shares,omitempty"`
	Views     string `json:"views,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ContentRef - one listed item
type ContentRef struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
}

// ContentList - a page of references; NextCursor resumes after the last item
type ContentList struct {
	Items      []ContentRef `json:"items"`
	NextCursor string       `json:"nextCursor,omitempty"`
	Exhausted  bool         `json:"exhausted"`
}

type PostResult struct {
	ID     string   `json:"id,omitempty"`
	URL    string   `json:"url,omitempty"`
	Thread []string `json:"thread,omitempty"`
}

type LikeResult struct {
	Liked   bool `json:"liked"`
	Changed bool `json:"changed"`
}

type FollowResult struct {
	Following bool `json:"following"`
	Changed   bool `json:"changed"`
}

type RepostResult struct {
	Reposted bool `json:"reposted"`
	Changed  bool `json:"changed"`
}

type ConnectResult struct {
	Requested bool `json:"requested"`
	Changed   bool `json:"changed"`
}

type CommentResult struct {
	Posted    bool   `json:"posted"`
	ContentID string `json:"contentId"`
}

type MessageResult struct {
	Sent      bool   `json:"sent"`
	Recipient string `json:"recipient"`
}

type DeleteResult struct {
	Deleted   bool   `json:"deleted"`
	ContentID string `json:"contentId"`
}
