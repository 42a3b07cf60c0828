package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"czi2tiff/pkg/config"
	"czi2tiff/pkg/export"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing CZI container files")
	outputDir := flag.String("output", "", "Output directory (default: alongside each input file)")
	dtype := flag.String("dtype", "", "Output pixel depth: default, uint8 or uint16")
	round := flag.Int("round", -1, "Acquisition round number (default: parsed from each filename)")
	configPath := flag.String("config", "", "Optional YAML configuration file")
	preview := flag.Bool("preview", false, "Also write downscaled PNG previews")
	flag.Parse()

	// Validate inputs
	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	// Load configuration, then let explicit flags override it
	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *dtype != "" {
		cfg.Export.Dtype = *dtype
	}
	if *outputDir != "" {
		cfg.Export.OutputDir = *outputDir
	}
	if *preview {
		cfg.Preview.Enabled = true
	}

	depth, err := config.ParseDepth(cfg.Export.Dtype)
	if err != nil {
		log.Fatalf("Invalid dtype: %v", err)
	}

	entries, err := os.ReadDir(*inputDir)
	if err != nil {
		log.Fatalf("Failed to read input directory: %v", err)
	}

	exporter := export.NewExporter(export.Options{
		OutputDir:      cfg.Export.OutputDir,
		Depth:          depth,
		Round:          *round,
		ChannelNumbers: cfg.Channels.Numbers,
		Preview:        cfg.Preview.Enabled,
		PreviewMaxDim:  cfg.Preview.MaxDimension,
	})

	fmt.Println("================================")
	fmt.Println("CZI MULTI-CHANNEL MICROSCOPY EXPORT")
	fmt.Println("================================")

	startTime := time.Now()
	exported := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".czi") {
			continue
		}

		path := filepath.Join(*inputDir, entry.Name())
		fmt.Printf("Exporting %s...\n", entry.Name())

		written, err := exporter.ExportFile(path)
		if err != nil {
			log.Fatalf("Export failed: %v", err)
		}

		for _, out := range written {
			fmt.Printf("  wrote %s\n", out)
		}
		exported++
	}

	if exported == 0 {
		log.Fatalf("No .czi files found in %s", *inputDir)
	}

	fmt.Printf("\nExported %d file(s) in %.2f seconds\n", exported, time.Since(startTime).Seconds())
}
