// Sends a prompt through the configured AI analyzer, for checking the API
// key and model settings before enabling ai_analysis in the alerter.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"NetSentry/internal/ai"
	"NetSentry/internal/config"
)

func main() {
	// 1. Parse command-line flags
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	prompt := flag.String("prompt", "", "The alert text to analyze")
	flag.Parse()

	// 2. If the prompt is empty, read it from non-flag arguments
	if *prompt == "" {
		if flag.NArg() > 0 {
			*prompt = strings.Join(flag.Args(), " ")
		} else {
			log.Fatalf("Error: A prompt is required. Use -prompt or provide it as an argument.")
		}
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	analyzer, err := ai.NewDigestAnalyzer(&cfg.AI)
	if err != nil {
		log.Fatalf("Failed to create analyzer: %v", err)
	}

	// 3. Run the analysis and print the answer
	log.Println("Sending prompt to AI...")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	answer, err := analyzer.AnalyzeAlerts(ctx, *prompt)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}
	fmt.Println(answer)
}
