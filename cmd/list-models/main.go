// Command list-models prints the ElevenLabs models available to ELEVENLABS_API_KEY.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-button/internal/config"
	"github.com/lexiqai/voice-button/internal/tts"
)

func main() {
	timeout := flag.Duration("timeout", 15*time.Second, "Request timeout")
	ttsOnly := flag.Bool("tts-only", false, "Only list models that can do text-to-speech")
	flag.Parse()

	_ = godotenv.Load()

	client, err := tts.NewElevenLabsClient(tts.ElevenLabsConfig{
		APIKey:       config.GetEnv("ELEVENLABS_API_KEY", ""),
		VoiceID:      config.GetEnv("ELEVENLABS_VOICE_ID", "fxO7BD0lOiWADH5LwvFr"),
		OutputFormat: "mp3_22050_32",
		Settings:     tts.VoiceSettings{Stability: 0.5, SimilarityBoost: 0.5},
		Timeout:      *timeout,
	}, zerolog.Nop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	models, err := client.Models(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to retrieve models: %v\n", err)
		os.Exit(1)
	}

	for _, m := range models {
		if *ttsOnly && !m.CanDoTextToSpeech {
			continue
		}
		fmt.Printf("Model ID: %s\n", m.ModelID)
		fmt.Printf("Name: %s\n", m.Name)
		fmt.Printf("Can do TTS: %v\n", m.CanDoTextToSpeech)
		fmt.Println("---")
	}
}
