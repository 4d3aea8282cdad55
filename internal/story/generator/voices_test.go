package generator

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVoiceRegistry(t *testing.T) {
	r := NewVoiceRegistry("Charon",
		map[string]string{"Villain": "Fenrir"},
		[]Alias{{Match: "安安", Voice: "Puck"}, {Match: "葉", Voice: "Aoede"}},
	)

	tests := []struct {
		speaker string
		want    string
	}{
		{"villain", "Fenrir"},
		{" Villain ", "Fenrir"},
		{"安安", "Puck"},
		{"葉凡與安安", "Puck"},
		{"葉凡", "Aoede"},
		{"旁白", "Charon"},
		{"", "Charon"},
	}
	for _, tt := range tests {
		if got := r.VoiceFor(tt.speaker); got != tt.want {
			t.Errorf("VoiceFor(%q) = %q, want %q", tt.speaker, got, tt.want)
		}
	}

	if diff := cmp.Diff([]string{"Aoede", "Charon", "Fenrir", "Puck"}, r.Voices()); diff != "" {
		t.Errorf("Voices() mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultVoiceRegistry(t *testing.T) {
	r := DefaultVoiceRegistry()

	tests := map[string]string{
		"葉凡":     "Fenrir",
		"年輕的葉凡":  "Fenrir",
		"平平":     "Puck",
		"安安":     "Puck",
		"葉凡和平平":  "Puck",
		"Narrator": "Kore",
		"反派":     "Kore",
	}
	for speaker, want := range tests {
		if got := r.VoiceFor(speaker); got != want {
			t.Errorf("VoiceFor(%q) = %q, want %q", speaker, got, want)
		}
	}
	if r.Narrator() != "Kore" {
		t.Errorf("Narrator() = %q, want Kore", r.Narrator())
	}
}
