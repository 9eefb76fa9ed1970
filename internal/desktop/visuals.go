package desktop

import (
	"github.com/rs/zerolog/log"
)

// Property paths of the fixed visual tuple on the desktop channel.
const (
	PropDesktopMenu    = "/desktop-menu/show"
	PropWindowlistMenu = "/windowlist-menu/show"
	PropIconStyle      = "/desktop-icons/style"

	IconStyleHidden = "0"
	IconStyleNormal = "2"
)

// PropertyWriter is the mutation slice of the property-store client.
type PropertyWriter interface {
	Set(channel, path, typ, value string)
}

// Visuals applies the per-mode desktop visual policy: right-click desktop
// menu, middle-click window-list menu, icon style. Best-effort: the
// underlying Set never fails.
type Visuals struct {
	Store   PropertyWriter
	Channel string
}

func (v Visuals) Apply(kiosk bool) {
	menus, style := "true", IconStyleNormal
	if kiosk {
		menus, style = "false", IconStyleHidden
	}
	v.Store.Set(v.Channel, PropDesktopMenu, "bool", menus)
	v.Store.Set(v.Channel, PropWindowlistMenu, "bool", menus)
	v.Store.Set(v.Channel, PropIconStyle, "int", style)
	log.Info().Msgf("desktop.Visuals.Apply kiosk=%v menus=%s icon_style=%s", kiosk, menus, style)
}
