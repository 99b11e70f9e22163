package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/soundctl/audiobridge/api"
	"github.com/soundctl/audiobridge/internal/bridge"
	"github.com/soundctl/audiobridge/internal/catalog"
	"github.com/soundctl/audiobridge/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Local .env overrides are optional
	_ = godotenv.Load()

	assetID := flag.String("id", "demo", "asset id to register")
	assetPath := flag.String("play", "", "audio file or URL to play")
	isURL := flag.Bool("url", false, "treat -play as a URL")
	loop := flag.Bool("loop", false, "loop playback until interrupted")
	list := flag.Bool("list", false, "list playable assets in the public directory")
	flag.Parse()

	cfg, err := config.LoadOrCreate(config.GetConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	logger := log.New(os.Stderr, "audiobridge: ", log.LstdFlags)
	coord := bridge.New(bridge.Options{
		PublicDir: cfg.PublicDir,
		CacheDir:  cfg.CacheDir,
		Logger:    logger,
	})
	defer coord.Close()

	fade := cfg.FadeMusic
	notify := cfg.ShowNotification
	if err := coord.Configure(api.ConfigureOptions{
		Fade:             &fade,
		ShowNotification: &notify,
		Focus:            &cfg.Focus,
		Background:       &cfg.Background,
		IgnoreSilent:     &cfg.IgnoreSilent,
	}); err != nil {
		return fmt.Errorf("configure: %w", err)
	}

	fmt.Printf("audiobridge %s\n", coord.GetVersion())

	if *list {
		entries, err := catalog.NewScanner(4).ScanAll(context.Background(), cfg.PublicDir)
		if err != nil {
			logger.Printf("scan: %v", err)
		}
		for _, e := range entries {
			fmt.Printf("%-40s %s - %s\n", e.AssetID, e.Artist, e.Title)
		}
		return nil
	}

	if *assetPath == "" {
		flag.Usage()
		return nil
	}

	volume := cfg.DefaultVolume
	if err := coord.Preload(api.PreloadOptions{
		AssetID:   *assetID,
		AssetPath: *assetPath,
		Volume:    &volume,
		IsURL:     *isURL,
	}); err != nil {
		return fmt.Errorf("preload: %w", err)
	}

	events := coord.Events().SubscribeAll()

	if *loop {
		if err := coord.Loop(*assetID); err != nil {
			return fmt.Errorf("loop: %w", err)
		}
	} else {
		if err := coord.Play(api.PlayOptions{AssetID: *assetID}); err != nil {
			return fmt.Errorf("play: %w", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case ev := <-events:
			switch ev.Type {
			case api.EventComplete:
				fmt.Printf("complete: %s\n", ev.AssetID)
				return nil
			case api.EventCurrentTime:
				if secs, ok := ev.Payload.(float64); ok {
					fmt.Printf("\r%6.1fs", secs)
				}
			case api.EventInterrupt:
				fmt.Printf("interrupt: %+v\n", ev.Payload)
			}
		case <-sigChan:
			fmt.Println("\nstopping")
			if err := coord.Stop(*assetID); err != nil {
				logger.Printf("stop: %v", err)
			}
			// Give a fade-out, if configured, a moment to finish
			time.Sleep(150 * time.Millisecond)
			return nil
		}
	}
}
