package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	cardfinder "github.com/menta2k/card-finder"
	"github.com/menta2k/card-finder/internal/config"
	"github.com/menta2k/card-finder/internal/utils"
)

func main() {
	var in, outDir, configPath string
	var backend, url, model string
	var mode, ext string
	var width, height, quality, workers int
	var timeout float64
	var bg, debug, lossless, saveConfig bool

	flag.StringVar(&in, "in", "", "input image path, URL, or directory of images")
	flag.StringVar(&outDir, "out", "", "output directory (default from config)")
	flag.StringVar(&configPath, "config", "", "JSON config file (default "+config.GetConfigPath()+" when present)")
	flag.BoolVar(&saveConfig, "saveconfig", false, "write the effective config to -config and exit")

	flag.StringVar(&backend, "backend", "", "vision model backend: none|ollama|llamacpp")
	flag.StringVar(&url, "url", "", "model server URL (defaults: ollama=http://localhost:11434/api/chat, llamacpp=http://localhost:8080)")
	flag.StringVar(&model, "model", "", "model name")
	flag.BoolVar(&bg, "bg", false, "remove a uniform background before asking the model")

	flag.StringVar(&mode, "mode", "", "strategy mode: first|blend")
	flag.IntVar(&width, "width", 0, "card crop width in px")
	flag.IntVar(&height, "height", 0, "card crop height in px")
	flag.StringVar(&ext, "ext", "", "output format for crops: jpg|png|webp")
	flag.IntVar(&quality, "quality", 0, "JPEG/WebP output quality for crops (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP output lossless mode for crops")
	flag.BoolVar(&debug, "debug", false, "write a debug overlay with every detected card")
	flag.IntVar(&workers, "workers", 0, "parallel workers (0 = all CPUs)")
	flag.Float64Var(&timeout, "timeout", 0, "model call timeout in seconds")

	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}

	// Flags override the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.Output.OutputDir = outDir
		case "backend":
			cfg.Model.Backend = backend
		case "url":
			cfg.Model.URL = url
		case "model":
			cfg.Model.Name = model
		case "bg":
			cfg.Model.RemoveBackground = bg
		case "mode":
			cfg.Detection.Mode = mode
		case "width":
			cfg.Cropper.Width = width
		case "height":
			cfg.Cropper.Height = height
		case "ext":
			cfg.Output.DefaultFormat = strings.ToLower(ext)
		case "quality":
			cfg.Output.Quality = quality
		case "lossless":
			cfg.Output.Lossless = lossless
		case "debug":
			cfg.Output.Debug = debug
		case "workers":
			cfg.Detection.Workers = workers
		case "timeout":
			cfg.Detection.ExternalTimeoutSec = timeout
		}
	})

	if saveConfig {
		path := configPath
		if path == "" {
			path = config.GetConfigPath()
		}
		if err := cfg.SaveToFile(path); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", path)
		return
	}

	if in == "" {
		log.Fatalf("usage: %s -in photo.jpg|URL|dir [-backend none|ollama|llamacpp] [-url server_url] [-out outdir] [-mode first|blend] [-ext jpg|png|webp] [-debug]", filepath.Base(os.Args[0]))
	}

	finder, err := cardfinder.NewWithConfig(cfg)
	if err != nil {
		log.Fatal(err)
	}

	sources := []string{in}
	if utils.DirExists(in) {
		sources, err = utils.ListImageFiles(in)
		if err != nil {
			log.Fatal(err)
		}
		if len(sources) == 0 {
			log.Fatalf("no images found in %s", in)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	reports := processAll(ctx, finder, sources, cfg.Output.OutputDir, cfg.Detection.Workers)

	found := 0
	for _, r := range reports {
		if r.Error != "" {
			log.Printf("%s: %s", r.Source, r.Error)
			continue
		}
		found += len(r.Cards)
		log.Printf("%s: %d cards via %s in %dms", r.Source, len(r.Cards), r.Result.MethodUsed, r.Result.ProcessingTimeMs)
		for _, c := range r.Cards {
			size := ""
			if info, err := os.Stat(c.Path); err == nil {
				size = utils.FormatFileSize(info.Size())
			}
			log.Printf("  wrote %s (%s) conf=%.2f bounds=%s", c.Path, size, c.Confidence, c.Bounds)
		}
		if r.Overlay != "" {
			log.Printf("  wrote %s", r.Overlay)
		}
	}

	js, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		log.Fatal(err)
	}
	jsonPath := filepath.Join(cfg.Output.OutputDir, "detections.json")
	if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(jsonPath, js, 0o644); err != nil {
		log.Fatal(err)
	}
	log.Printf("%d cards from %d images in %s, details in %s", found, len(sources), time.Since(start).Round(time.Millisecond), jsonPath)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if def := config.GetConfigPath(); utils.FileExists(def) {
			path = def
		}
	}
	if path == "" || !utils.FileExists(path) {
		return config.Default(), nil
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	log.Printf("using config %s", path)
	return cfg, nil
}

// processAll runs ProcessImageFile for every source on a bounded pool.
// After an interrupt no new source is started.
func processAll(ctx context.Context, finder *cardfinder.Finder, sources []string, outDir string, workers int) []cardfinder.Report {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	reports := make([]cardfinder.Report, len(sources))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(sources); j++ {
				reports[j] = cardfinder.Report{Source: sources[j], Error: err.Error()}
			}
			break
		}
		g.Go(func() error {
			dir := outDir
			if len(sources) > 1 {
				dir = filepath.Join(outDir, fmt.Sprintf("%03d_%s", i+1, utils.SanitizeFilename(utils.BaseName(src))))
			}
			report, err := finder.ProcessImageFile(ctx, src, dir)
			if err != nil {
				report.Error = err.Error()
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()
	return reports
}
