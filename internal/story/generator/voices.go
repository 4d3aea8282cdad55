package generator

import (
	"sort"
	"strings"
)

const DefaultNarratorVoice = "Kore"

// Alias maps every speaker whose name contains Match to Voice.
type Alias struct {
	Match string `mapstructure:"match" json:"match"`
	Voice string `mapstructure:"voice" json:"voice"`
}

// VoiceRegistry picks a synthesis voice for a speaker: an exact speaker
// match first, then the first alias contained in the name, then the narrator.
type VoiceRegistry struct {
	narrator string
	speakers map[string]string
	aliases  []Alias
}

func NewVoiceRegistry(narrator string, speakers map[string]string, aliases []Alias) *VoiceRegistry {
	if narrator == "" {
		narrator = DefaultNarratorVoice
	}
	r := &VoiceRegistry{
		narrator: narrator,
		speakers: make(map[string]string, len(speakers)),
	}
	// Config keys arrive lowercased, so lookups are case-insensitive.
	for name, voice := range speakers {
		if name != "" && voice != "" {
			r.speakers[strings.ToLower(name)] = voice
		}
	}
	for _, a := range aliases {
		if a.Match != "" && a.Voice != "" {
			r.aliases = append(r.aliases, a)
		}
	}
	return r
}

// DefaultVoiceRegistry reproduces the stock cast: the twins speak as Puck
// and 葉凡 as Fenrir. A line naming a twin wins over one naming 葉凡.
func DefaultVoiceRegistry() *VoiceRegistry {
	return NewVoiceRegistry(DefaultNarratorVoice, nil, []Alias{
		{Match: "平平", Voice: "Puck"},
		{Match: "安安", Voice: "Puck"},
		{Match: "葉凡", Voice: "Fenrir"},
	})
}

func (r *VoiceRegistry) Narrator() string { return r.narrator }

func (r *VoiceRegistry) VoiceFor(speaker string) string {
	speaker = strings.TrimSpace(speaker)
	if voice, ok := r.speakers[strings.ToLower(speaker)]; ok {
		return voice
	}
	for _, a := range r.aliases {
		if strings.Contains(speaker, a.Match) {
			return a.Voice
		}
	}
	return r.narrator
}

// Voices lists every distinct voice the registry can return.
func (r *VoiceRegistry) Voices() []string {
	set := map[string]bool{r.narrator: true}
	for _, v := range r.speakers {
		set[v] = true
	}
	for _, a := range r.aliases {
		set[a.Voice] = true
	}
	voices := make([]string, 0, len(set))
	for v := range set {
		voices = append(voices, v)
	}
	sort.Strings(voices)
	return voices
}
