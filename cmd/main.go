package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"storyreel/internal/cli/scheme/colours"
	"storyreel/internal/config"
	"storyreel/internal/story/nest"
)

func main() {

	if err := config.Init(); err != nil {
		colours.Error.Printf("❌ Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		colours.Error.Printf("❌ Error: %v\n", err)
		os.Exit(1)
	}
	if err := config.ConfigureLogging(cfg.Log.Level, cfg.Log.Format); err != nil {
		colours.Error.Printf("❌ Error: %v\n", err)
		os.Exit(1)
	}

	app, err := nest.New(cfg)
	if err != nil {
		colours.Error.Printf("❌ Error: %v\n", err)
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		app.Close()
		fmt.Println("\n" + colours.Warning.Sprint("👋 Goodbye! See you next chapter! 🌙"))
		os.Exit(0)
	}()

	rootCmd := &cobra.Command{
		Use:   "storyreel",
		Short: "🎬 A narrated, swipeable visual novel",
		Long: `
┌─────────────────────────────────────┐
│  🎬 Welcome to StoryReel! 📖        │
│  Generated chapters, scene by scene │
│  Narrated and illustrated 🎧🖼       │
└─────────────────────────────────────┘

StoryReel writes a serialized novel chapter by chapter, illustrates and
narrates every scene, and plays it back one swipe at a time.
		`,
		Run: func(cmd *cobra.Command, args []string) {
			app.ShowWelcome()
		},
	}

	// Outline command
	outlineCmd := &cobra.Command{
		Use:   "outline",
		Short: "📚 Generate the chapter list",
		Long:  "Ask the model for the novel's chapter outline and print it",
		Run:   app.ShowOutline,
	}

	// Play command
	playCmd := &cobra.Command{
		Use:   "play [chapter]",
		Short: "▶️ Play a chapter",
		Long:  "Generate a chapter's script and play its scenes in the terminal",
		Args:  cobra.MaximumNArgs(1),
		Run:   app.Play,
	}

	// Serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "🌐 Start the control server",
		Long:  "Expose the player over HTTP and stream its events over a WebSocket",
		Run:   app.Serve,
	}

	// Voices command
	voicesCmd := &cobra.Command{
		Use:   "voices",
		Short: "🎤 Show speaker voices",
		Long:  "List the narrator, speaker voice mapping and the engine's voices",
		Run:   app.ListVoices,
	}

	serveCmd.Flags().StringP("addr", "a", "", "Listen address (defaults to server.addr)")

	rootCmd.AddCommand(outlineCmd, playCmd, serveCmd, voicesCmd)

	if err := rootCmd.Execute(); err != nil {
		app.Close()
		colours.Error.Printf("❌ Error: %v\n", err)
		os.Exit(1)
	}
	app.Close()
}
