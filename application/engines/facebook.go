package engines

// Facebook runs the shared flows unchanged. Conversations open from the
// messages URL and comments submit with Enter, both driven by the catalog.
type Facebook struct {
	Base
}

func (fb *Facebook) Capabilities() Capabilities {
	return capabilities(fb, fb.cfg)
}
