package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"
)

type EngineType string

const (
	EngineTypeMock          EngineType = "mock"
	EngineTypeGemini        EngineType = "gemini"
	EngineTypeESpeak        EngineType = "espeak"
	EngineTypeGoogleClassic EngineType = "googleclassic"
	EngineTypeAuto          EngineType = "auto" // Automatically choose the best available
)

func (e EngineType) String() string {
	return string(e)
}

// NewEngine creates a speech synthesizer based on the provided config. The
// gemini engine needs a content client; it may be nil for the others.
func NewEngine(ctx context.Context, config Config, content ContentGenerator) (Synthesizer, error) {
	if config.Type == "" || config.Type == EngineTypeAuto.String() {
		config.Type = getBestEngine(content).String()
		logrus.WithField("engine", config.Type).Info("Auto-selected speech engine")
	}

	switch config.Type {
	case EngineTypeMock.String():
		return NewMockEngine(config), nil

	case EngineTypeGemini.String():
		if content == nil {
			return nil, fmt.Errorf("gemini speech engine needs an API key")
		}
		return NewGeminiEngine(content, config), nil

	case EngineTypeGoogleClassic.String():
		return newGoogleClassicEngine(ctx, config)

	case EngineTypeESpeak.String():
		return newESpeakEngine(config)

	default:
		return nil, fmt.Errorf("unsupported TTS engine type: %s", config.Type)
	}
}

// getBestEngine returns the recommended engine given the available credentials
func getBestEngine(content ContentGenerator) EngineType {
	if content != nil {
		return EngineTypeGemini
	}
	if hasGoogleCredentials() {
		return EngineTypeGoogleClassic
	}
	if _, err := findESpeakExecutable(); err == nil {
		return EngineTypeESpeak
	}
	return EngineTypeMock
}

// GetAvailableEngines returns engines usable in the current environment
func GetAvailableEngines(content ContentGenerator) []EngineType {
	engines := []EngineType{EngineTypeMock}

	if content != nil {
		engines = append(engines, EngineTypeGemini)
	}
	if hasGoogleCredentials() {
		engines = append(engines, EngineTypeGoogleClassic)
	}
	if _, err := findESpeakExecutable(); err == nil {
		engines = append(engines, EngineTypeESpeak)
	}

	return engines
}

// hasGoogleCredentials checks if Google Cloud credentials are available
func hasGoogleCredentials() bool {
	_, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS")
	return ok
}

func findESpeakExecutable() (string, error) {
	candidates := []string{"espeak-ng", "espeak"}

	for _, candidate := range candidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("eSpeak executable not found in PATH")
}
