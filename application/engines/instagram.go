package engines

import (
	"context"
	"regexp"

	"social_automation/domain/entities"
)

// igPostDescription matches the og:description of a post page:
// `1,234 likes, 56 comments - someuser on June 1, 2024: "caption"`
var igPostDescription = regexp.MustCompile(`(?is)^([\d.,]+\s?[KMB]?) likes?, ([\d.,]+\s?[KMB]?) comments? - ([\w.]+) on [^:]+: ["“](.*)["”]\.?$`)

// Instagram reads post details from meta tags, which survive UI changes
// better than the post markup
type Instagram struct {
	Base
}

func (i *Instagram) Capabilities() Capabilities {
	return capabilities(i, i.cfg)
}

func (i *Instagram) GetContent(ctx context.Context, f *Flow, contentRef string) (entities.ContentObservation, error) {
	obs, err := i.Base.GetContent(ctx, f, contentRef)
	if err != nil {
		return obs, err
	}

	snap, err := f.Snapshot(ctx)
	if err != nil || snap == nil {
		return obs, nil
	}
	description := snap.Description()
	m := igPostDescription.FindStringSubmatch(description)
	if m == nil {
		return obs, nil
	}

	if obs.Likes == "" {
		obs.Likes = m[1]
	}
	if obs.Comments == "" {
		obs.Comments = m[2]
	}
	obs.Author = m[3]
	if obs.Text == "" || obs.Text == description {
		obs.Text = collapse(m[4])
	}
	return obs, nil
}
