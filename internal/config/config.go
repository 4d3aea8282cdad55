package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Retry struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
}

type VoiceAlias struct {
	Match string `mapstructure:"match"`
	Voice string `mapstructure:"voice"`
}

type Config struct {
	Gemini struct {
		APIKey            string `mapstructure:"api_key"`
		BaseURL           string `mapstructure:"base_url"`
		TextModel         string `mapstructure:"text_model"`
		ImageModel        string `mapstructure:"image_model"`
		SpeechModel       string `mapstructure:"speech_model"`
		RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	} `mapstructure:"gemini"`

	TTS struct {
		Type           string            `mapstructure:"type"`
		Language       string            `mapstructure:"language"`
		Speed          float64           `mapstructure:"speed"`
		EspeakVoice    string            `mapstructure:"espeak_voice"`
		EspeakVariants map[string]string `mapstructure:"espeak_variants"`
	} `mapstructure:"tts"`

	Retry struct {
		Text   Retry `mapstructure:"text"`
		Image  Retry `mapstructure:"image"`
		Speech Retry `mapstructure:"speech"`
	} `mapstructure:"retry"`

	Player struct {
		PrefetchDelay  time.Duration `mapstructure:"prefetch_delay"`
		SwipeThreshold float64       `mapstructure:"swipe_threshold"`
	} `mapstructure:"player"`

	Audio struct {
		SampleRate int    `mapstructure:"sample_rate"`
		Device     string `mapstructure:"device"`
	} `mapstructure:"audio"`

	Story struct {
		Title            string `mapstructure:"title"`
		ChapterCount     int    `mapstructure:"chapter_count"`
		NarrativeContext string `mapstructure:"narrative_context"`
	} `mapstructure:"story"`

	Voices struct {
		Narrator string            `mapstructure:"narrator"`
		Speakers map[string]string `mapstructure:"speakers"`
		Aliases  []VoiceAlias      `mapstructure:"aliases"`
	} `mapstructure:"voices"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

const envPrefix = "STORYREEL"

func SetDefaults() {
	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	viper.SetDefault("gemini.text_model", "gemini-2.5-flash")
	viper.SetDefault("gemini.image_model", "gemini-2.5-flash-image")
	viper.SetDefault("gemini.speech_model", "gemini-2.5-flash-preview-tts")
	viper.SetDefault("gemini.requests_per_minute", 0) // unlimited

	viper.SetDefault("tts.type", "auto") // Auto-select best engine
	viper.SetDefault("tts.language", "cmn-CN")
	viper.SetDefault("tts.speed", 1.0)
	viper.SetDefault("tts.espeak_voice", "cmn")
	viper.SetDefault("tts.espeak_variants", map[string]string{
		"Kore":   "f3",
		"Fenrir": "m3",
		"Puck":   "f5",
	})

	viper.SetDefault("retry.text.max_retries", 3)
	viper.SetDefault("retry.text.base_delay", "2s")
	viper.SetDefault("retry.image.max_retries", 3)
	viper.SetDefault("retry.image.base_delay", "3s")
	viper.SetDefault("retry.speech.max_retries", 3)
	viper.SetDefault("retry.speech.base_delay", "2s")

	viper.SetDefault("player.prefetch_delay", "2.5s")
	viper.SetDefault("player.swipe_threshold", 50.0)

	viper.SetDefault("audio.sample_rate", 24000)
	viper.SetDefault("audio.device", "speaker")

	viper.SetDefault("story.title", "都市修仙：女兒賣花，仙尊歸來")
	viper.SetDefault("story.chapter_count", 8)
	viper.SetDefault("story.narrative_context", "")

	viper.SetDefault("voices.narrator", "Kore")
	viper.SetDefault("voices.speakers", map[string]string{})
	viper.SetDefault("voices.aliases", []map[string]string{
		{"match": "平平", "voice": "Puck"},
		{"match": "安安", "voice": "Puck"},
		{"match": "葉凡", "voice": "Fenrir"},
	})

	viper.SetDefault("server.addr", "127.0.0.1:8080")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// Gemini tooling conventionally exports the key without a prefix.
	_ = viper.BindEnv("gemini.api_key", envPrefix+"_GEMINI_API_KEY", "GEMINI_API_KEY", "API_KEY")
}

// Init loads .env, registers defaults and reads storyreel.yaml from
// $HOME/.storyreel or the working directory, if present.
func Init() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("Failed to load .env file")
	}

	SetDefaults()

	viper.SetConfigName("storyreel")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.storyreel")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// ConfigureLogging applies log.level and log.format to the standard logger.
func ConfigureLogging(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)

	switch format {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unsupported log format: %s", format)
	}
	return nil
}
