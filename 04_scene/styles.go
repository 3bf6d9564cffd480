package scene

import "eto-fortune-pipeline/types"

// Style is a parameterized visual template: an animation name the scene
// template understands plus the wa-iro gradient palette driving it.
type Style struct {
	Anim    string // animation keyword passed to the template
	Grad    [3]string
	Glow    string
	Element string
}

// Animation style per mood. Each template takes the animal image, title
// text, and duration as inputs.
const (
	animPetalDrift = "sakura" // drifting cherry-blossom petals
	animInkBrush   = "ink"    // sumi-e ink wash reveal
	animStaticZen  = "zen"    // still zen-garden composition
	animWave       = "wave"   // seigaiha wave motion
)

// moodStyles keys the fixed style set by mood tag.
var moodStyles = map[types.Mood]Style{
	types.MoodSakura: {
		Anim:    animPetalDrift,
		Grad:    [3]string{"#2b0a14", "#8a1e3d", "#ff6b8a"},
		Glow:    "#ff4081",
		Element: "fire",
	},
	types.MoodMystical: {
		Anim:    animInkBrush,
		Grad:    [3]string{"#1a1a2e", "#3d3d5c", "#b0b0c9"},
		Glow:    "#c9c9e0",
		Element: "metal",
	},
	types.MoodZen: {
		Anim:    animStaticZen,
		Grad:    [3]string{"#0f1f0a", "#2d5a1e", "#7cb342"},
		Glow:    "#8bc34a",
		Element: "wood",
	},
	types.MoodEnergetic: {
		Anim:    animWave,
		Grad:    [3]string{"#0a1628", "#1e4066", "#5c9dc9"},
		Glow:    "#4fb3d9",
		Element: "water",
	},
}

// fallbackStyle is a neutral deep-indigo theme for safety; StyleFor only
// reaches it if a caller bypasses mood validation.
var fallbackStyle = Style{
	Anim:    animStaticZen,
	Grad:    [3]string{"#0a0a1a", "#1a1a3a", "#3a3a6a"},
	Glow:    "#8080ff",
	Element: "water",
}

// StyleFor returns the animation style keyed by mood tag.
func StyleFor(mood types.Mood) Style {
	if s, ok := moodStyles[mood]; ok {
		return s
	}
	return fallbackStyle
}
