package engines

// TikTok runs the shared flows unchanged; uploads go through the studio
// page and messaging requires a follow, both configured in the catalog
type TikTok struct {
	Base
}

func (t *TikTok) Capabilities() Capabilities {
	return capabilities(t, t.cfg)
}
