// Package normalize shapes raw page observations into the response schema
// each platform's callers expect. Display counts are never parsed: "1.2K"
// stays "1.2K".
package normalize

import (
	"fmt"
	"net/url"
	"strings"

	"social_automation/domain/entities"
)

// Normalize - wraps the observation of op in a success envelope shaped for
// platform. An observation that does not belong to op is a failure.
func Normalize(platform entities.Platform, op entities.Operation, obs entities.Observation) entities.Envelope {
	data, err := shape(platform, op, obs)
	if err != nil {
		return entities.Fail(err)
	}
	return entities.Succeed(data)
}

func shape(platform entities.Platform, op entities.Operation, obs entities.Observation) (any, error) {
	switch o := obs.(type) {
	case entities.ProfileObservation:
		if op == entities.OpGetProfile {
			return profile(platform, o), nil
		}
	case entities.ContentObservation:
		if op == entities.OpGetContent {
			return content(platform, o), nil
		}
	case entities.ListObservation:
		if op == entities.OpListContent || op == entities.OpSearch {
			return list(o), nil
		}
	case entities.PostObservation:
		if op == entities.OpCreatePost {
			return PostResult{ID: o.ID, URL: o.URL, Thread: o.Thread}, nil
		}
	case entities.ToggleObservation:
		if o.Operation == op {
			if data := toggle(o); data != nil {
				return data, nil
			}
		}
	case entities.CommentObservation:
		if op == entities.OpComment {
			return CommentResult{Posted: true, ContentID: o.ContentID}, nil
		}
	case entities.MessageObservation:
		if op == entities.OpSendMessage {
			return MessageResult{Sent: true, Recipient: o.Recipient}, nil
		}
	case entities.DeleteObservation:
		if op == entities.OpDeleteContent {
			return DeleteResult{Deleted: true, ContentID: o.ContentID}, nil
		}
	}
	return nil, fmt.Errorf("no %s response shape for %T", op, obs)
}

func profile(platform entities.Platform, o entities.ProfileObservation) any {
	if platform == entities.PlatformTwitter {
		id := o.ID
		if id == "" {
			id = o.Username
		}
		return User{
			ID:          id,
			Username:    o.Username,
			Name:        o.Name,
			Description: o.Bio,
			URL:         o.URL,
			PublicMetrics: UserMetrics{
				FollowersCount: o.Followers,
				FollowingCount: o.Following,
				TweetCount:     o.Posts,
			},
		}
	}
	return Profile{
		Username:   o.Username,
		ProfileURL: o.URL,
		Name:       o.Name,
		Bio:        o.Bio,
		Followers:  o.Followers,
		Following:  o.Following,
		Posts:      o.Posts,
		Likes:      o.Likes,
	}
}

func content(platform entities.Platform, o entities.ContentObservation) any {
	if platform == entities.PlatformTwitter {
		return Tweet{
			ID:             o.ID,
			Text:           o.Text,
			AuthorUsername: entities.NormalizeUsername(o.Author),
			URL:            o.URL,
			CreatedAt:      o.Timestamp,
			PublicMetrics: TweetMetrics{
				LikeCount:       o.Likes,
				RetweetCount:    o.Reposts,
				ReplyCount:      o.Comments,
				ImpressionCount: o.Views,
			},
		}
	}
	return Content{
		ID:        o.ID,
		URL:       o.URL,
		Text:      o.Text,
		Author:    o.Author,
		Likes:     o.Likes,
		Comments:  o.Comments,
		Shares:    o.Reposts,
		Views:     o.Views,
		Timestamp: o.Timestamp,
	}
}

func list(o entities.ListObservation) ContentList {
	out := ContentList{Items: make([]ContentRef, 0, len(o.Items)), Exhausted: o.Exhausted}
	for _, item := range o.Items {
		out.Items = append(out.Items, ContentRef{ID: item.ID, URL: item.URL, Text: item.Text})
	}
	if !o.Exhausted && len(o.Items) > 0 {
		out.NextCursor = o.Items[len(o.Items)-1].ID
	}
	return out
}

func toggle(o entities.ToggleObservation) any {
	switch o.Operation {
	case entities.OpLike, entities.OpUnlike:
		return LikeResult{Liked: o.State, Changed: o.Changed}
	case entities.OpFollow, entities.OpUnfollow:
		return FollowResult{Following: o.State, Changed: o.Changed}
	case entities.OpRepost, entities.OpUnrepost:
		return RepostResult{Reposted: o.State, Changed: o.Changed}
	case entities.OpConnect:
		return ConnectResult{Requested: o.State, Changed: o.Changed}
	}
	return nil
}

// Callback status values
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// CallbackPayload is the body posted to a caller-supplied URL once a
// queued request finishes
type CallbackPayload struct {
	ServerUUID  string            `json:"serverUuid"`
	RequestType string            `json:"requestType"`
	QueryString string            `json:"queryString"`
	Status      string            `json:"status"`
	Result      entities.Envelope `json:"result"`
}

// Callback - builds the callback body for req. The request type is
// "<platform>.<operation>" and the query string carries the parameters in
// key order.
func Callback(serverUUID string, req entities.Request, result entities.Envelope) CallbackPayload {
	values := url.Values{}
	for k, v := range req.Params {
		values.Set(k, v)
	}
	status := StatusCompleted
	if !result.Success {
		status = StatusFailed
	}
	return CallbackPayload{
		ServerUUID:  serverUUID,
		RequestType: strings.Join([]string{string(req.Platform), string(req.Operation)}, "."),
		QueryString: values.Encode(),
		Status:      status,
		Result:      result,
	}
}
