package profile

import "classcheck/internal/localstore"

type Theme string

const (
	Dark  Theme = "dark"
	Light Theme = "light"

	themeKey = "theme"
)

// LoadTheme returns the saved preference. Dark is the default.
func LoadTheme(s localstore.Store) Theme {
	v, ok, err := s.Get(themeKey)
	if err != nil || !ok || Theme(v) != Light {
		return Dark
	}
	return Light
}

// ToggleTheme flips and persists the preference.
func ToggleTheme(s localstore.Store) (Theme, error) {
	next := Light
	if LoadTheme(s) == Light {
		next = Dark
	}
	return next, s.Set(themeKey, string(next))
}
