package engines

import (
	"context"

	"social_automation/domain/entities"
)

var (
	linkedInFollow = Switch{
		Activate:          "follow_button",
		Deactivate:        "following_button",
		ConfirmDeactivate: "unfollow_confirm",
		Reveal:            "more_actions",
	}
	linkedInConnect = Switch{
		Activate:        "connect_button",
		ConfirmActivate: "connect_send",
		Deactivate:      "pending_button",
		Reveal:          "more_actions",
	}
)

// LinkedIn hides follow and connect behind "More" on many profiles
type LinkedIn struct {
	Base
}

func (l *LinkedIn) Capabilities() Capabilities {
	return capabilities(l, l.cfg)
}

func (l *LinkedIn) SetFollow(ctx context.Context, f *Flow, username string, follow bool) (entities.ToggleObservation, error) {
	return l.follow(ctx, f, username, follow, linkedInFollow)
}

// Connect - sends an invitation without a note. A pending invitation is
// reported as success with changed=false.
func (l *LinkedIn) Connect(ctx context.Context, f *Flow, username string) (entities.ToggleObservation, error) {
	obs := entities.ToggleObservation{Operation: entities.OpConnect, Target: username}

	if err := f.Navigate(ctx, f.Config().ProfileURL(username)); err != nil {
		return obs, err
	}
	changed, err := f.Flip(ctx, linkedInConnect, true)
	if err != nil {
		return obs, err
	}
	obs.State, obs.Changed = true, changed
	return obs, nil
}
