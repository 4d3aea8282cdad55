package story

// Narrator is the speaker sentinel that suppresses the speaker badge.
const Narrator = "Narrator"

// narratorAliases are speaker labels the script model uses for narration
// besides the canonical sentinel.
var narratorAliases = map[string]bool{
	Narrator: true,
	"旁白":     true,
}

// Chapter is one narrative unit produced by outline generation.
type Chapter struct {
	Number  int    `json:"chapterNumber"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Scene is one beat within a chapter's script. Image and Audio hold base64
// payloads and are empty until resolved.
type Scene struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	Text        string `json:"text"`
	Speaker     string `json:"speaker"`
	Image       string `json:"imageUrl,omitempty"`
	Audio       string `json:"audioData,omitempty"`
	Loading     bool   `json:"isLoading"`
}

type Status string

const (
	StatusLoading Status = "loading"
	StatusFailed  Status = "failed"
	StatusReady   Status = "ready"
)

// Status reports how the scene should be presented.
func (s Scene) Status() Status {
	switch {
	case s.Loading:
		return StatusLoading
	case s.Image == "":
		return StatusFailed
	default:
		return StatusReady
	}
}

// MissingAssets is true while either the image or the audio is absent.
func (s Scene) MissingAssets() bool {
	return s.Image == "" || s.Audio == ""
}

// ShowSpeaker is false for narration lines.
func (s Scene) ShowSpeaker() bool {
	return s.Speaker != "" && !narratorAliases[s.Speaker]
}

// Merge attaches newly resolved assets. Empty values never clear a field.
func (s *Scene) Merge(image, audio string) {
	if image != "" {
		s.Image = image
	}
	if audio != "" {
		s.Audio = audio
	}
}
