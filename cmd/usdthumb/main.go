// usdthumb renders a preview thumbnail for a scene asset and records it as
// the asset's default thumbnail.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/assetpipe/usdthumb/internal/config"
	"github.com/assetpipe/usdthumb/internal/logger"
	"github.com/assetpipe/usdthumb/internal/pipeline"
	"github.com/assetpipe/usdthumb/internal/render"
)

func main() {
	flag.Usage = printUsage
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrInvalidRequest) {
			fmt.Fprintf(os.Stderr, "usdthumb: %v\n\n", err)
			printUsage()
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Resolve the renderer backend once rather than per call site.
	if cfg.Render.Renderer == "" {
		cfg.Render.Renderer = render.DefaultBackend()
	}

	rec := render.NewUSDRecord(cfg.Render.Timeout)
	if err := pipeline.Run(context.Background(), cfg, rec); err != nil {
		logger.Error("thumbnail generation failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("thumbnail generated", zap.String("subject", cfg.Subject))
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usdthumb - render a preview thumbnail for a scene asset

Usage:
  usdthumb [options] <subject.usd[a|c|z]>

Options:
  -dome-light <image>    Light the scene with an environment dome image
  -width <pixels>        Output image width (default 2048)
  -height <pixels>       Output image height (default: square)
  -extension <ext>       Output image extension (default png)
  -renderer <backend>    Renderer backend (default: Metal on macOS, GL elsewhere)
  -create-usdz-result    Also repackage subject and image as <subject>_Thumbnail.usdz
  -verbose               Log each pipeline stage
  -config <path>         Config file (default: ./usdthumb.yaml)

Examples:
  usdthumb model.usda
  usdthumb -width 512 -extension jpg model.usda
  usdthumb -create-usdz-result -dome-light studio.hdr model.usdz`)
}
