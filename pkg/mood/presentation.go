package mood

// Emoji returns the display glyph for c.
func (c Category) Emoji() string {
	switch c {
	case Happy:
		return "😊"
	case Sad:
		return "😢"
	case Frustrated:
		return "😤"
	case Vibing:
		return "🎵"
	default:
		return "😐"
	}
}

// Color returns the dashboard accent color for c.
func (c Category) Color() string {
	switch c {
	case Happy:
		return "#eab308"
	case Sad:
		return "#3b82f6"
	case Frustrated:
		return "#ef4444"
	case Vibing:
		return "#a855f7"
	default:
		return "#6b7280"
	}
}
