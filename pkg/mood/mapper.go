package mood

// labelTable maps expression-engine labels onto the mood vocabulary.
var labelTable = map[string]Category{
	"happy":     Happy,
	"sad":       Sad,
	"neutral":   Neutral,
	"angry":     Frustrated,
	"surprised": Vibing,
	"fearful":   Neutral,
	"disgusted": Frustrated,
}

// MapLabel maps a native classifier label to a Category.
// Unknown labels map to Neutral. Lookup is exact; engine labels are lowercase.
func MapLabel(native string) Category {
	if c, ok := labelTable[native]; ok {
		return c
	}
	return Neutral
}

// NativeLabels returns the engine labels MapLabel knows about.
func NativeLabels() []string {
	return []string{"neutral", "happy", "sad", "angry", "fearful", "disgusted", "surprised"}
}
