package engines

import (
	"context"
	"time"

	"social_automation/domain/entities"
)

// Switch describes a two-state control such as like/unlike or
// follow/following. Activate is rendered while the state is off and
// Deactivate while it is on.
type Switch struct {
	Activate          string
	Deactivate        string
	ConfirmActivate   string
	ConfirmDeactivate string
	// Reveal is clicked once when neither control is visible, e.g. an
	// overflow menu hiding the follow button
	Reveal string
}

// State - current state of the switch
func (f *Flow) State(ctx context.Context, sw Switch) (bool, error) {
	if sw.Reveal != "" && f.cfg.HasTarget(sw.Reveal) {
		if _, found := f.quickState(ctx, sw); !found {
			if _, err := f.ClickIfPresent(ctx, sw.Reveal, f.cfg.Timeouts.Verify/2); err != nil {
				return false, err
			}
		}
	}

	name, _, err := f.WaitAny(ctx, sw.Deactivate, sw.Activate)
	if err != nil {
		return false, err
	}
	return name == sw.Deactivate, nil
}

func (f *Flow) quickState(ctx context.Context, sw Switch) (bool, bool) {
	if _, ok := f.Peek(ctx, sw.Deactivate); ok {
		return true, true
	}
	if _, ok := f.Peek(ctx, sw.Activate); ok {
		return false, true
	}
	return false, false
}

// Flip - drives the switch to want. Being in the target state already is
// success with changed=false. The clicked control has to disappear before
// the opposite control counts as the new state.
func (f *Flow) Flip(ctx context.Context, sw Switch, want bool) (bool, error) {
	current, err := f.State(ctx, sw)
	if err != nil {
		return false, err
	}
	if current == want {
		f.logger.WithField("state", want).Info("already in requested state")
		f.mark(ctx, entities.StageStateVerified)
		return false, nil
	}

	control, confirm, expect := sw.Activate, sw.ConfirmActivate, sw.Deactivate
	if !want {
		control, confirm, expect = sw.Deactivate, sw.ConfirmDeactivate, sw.Activate
	}

	if err := f.Click(ctx, control); err != nil {
		return false, err
	}
	if confirm != "" && f.cfg.HasTarget(confirm) {
		if err := f.confirm(ctx, confirm, control); err != nil {
			return false, err
		}
	}

	gone, err := f.gone(ctx, control)
	if err != nil {
		return false, err
	}
	if !gone {
		return false, entities.Blocked("%s is still present after the click", control).WithStage(entities.StageStateVerified)
	}
	if err := f.Verify(ctx, expect); err != nil {
		return false, err
	}
	return true, nil
}

// confirm clicks a confirmation dialog button unless the control goes away
// first; not every account gets the dialog
func (f *Flow) confirm(ctx context.Context, confirm, control string) error {
	d := f.cfg.Timeouts.Verify
	deadline := time.Now().Add(d)
	for {
		if el, ok := f.Peek(ctx, confirm); ok {
			return f.ClickElement(ctx, confirm, el)
		}
		if _, ok := f.Peek(ctx, control); !ok {
			return nil
		}
		if time.Now().After(deadline) {
			return nil
		}
		if err := f.Pause(ctx, pollInterval(d)); err != nil {
			return err
		}
	}
}
