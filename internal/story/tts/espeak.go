// Cross-platform eSpeak implementation
package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"storyreel/internal/story/audio"
)

const defaultESpeakVoice = "cmn"

// ESpeakEngine synthesizes offline with eSpeak/eSpeak-NG, reading the WAV it
// writes to stdout.
type ESpeakEngine struct {
	path   string
	config Config
}

// newESpeakEngine creates a new eSpeak speech engine
func newESpeakEngine(config Config) (*ESpeakEngine, error) {
	espeakPath, err := findESpeakExecutable()
	if err != nil {
		return nil, fmt.Errorf("eSpeak not found: %w", err)
	}

	if config.EspeakVoice == "" {
		config.EspeakVoice = defaultESpeakVoice
	}
	if config.SampleRate <= 0 {
		config.SampleRate = audio.DefaultSampleRate
	}

	return &ESpeakEngine{path: espeakPath, config: config}, nil
}

func (e *ESpeakEngine) Name() string { return EngineTypeESpeak.String() }

// voiceArg resolves a prebuilt voice name to an eSpeak "-v" argument.
func (e *ESpeakEngine) voiceArg(voice string) string {
	if variant, ok := e.config.EspeakVariants[voice]; ok && variant != "" {
		return e.config.EspeakVoice + "+" + variant
	}
	return e.config.EspeakVoice
}

func (e *ESpeakEngine) args(text, voice string) []string {
	args := []string{"--stdout", "-v", e.voiceArg(voice)}

	// Set speed (words per minute, default is 175)
	if e.config.Speed > 0 {
		args = append(args, "-s", strconv.Itoa(int(175*e.config.Speed)))
	}

	return append(args, text)
}

func (e *ESpeakEngine) Synthesize(ctx context.Context, text, voice string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.path, e.args(text, voice)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("eSpeak failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return "", ErrNoAudio
	}

	return audio.WAVToPCMBase64(stdout.Bytes(), e.config.SampleRate)
}

func (e *ESpeakEngine) GetAvailableVoices(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, e.path, "--voices")
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	return parseESpeakVoices(string(output)), nil
}

func parseESpeakVoices(output string) []string {
	lines := strings.Split(output, "\n")
	voices := make([]string, 0)

	for i, line := range lines {
		// Skip header line
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}

		// Pty Language Age/Gender VoiceName File Other Languages
		fields := strings.Fields(line)
		if len(fields) >= 4 {
			voices = append(voices, fields[3])
		}
	}

	return voices
}
