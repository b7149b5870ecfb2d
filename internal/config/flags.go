package config

import "flag"

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDomeLight  = flag.String("dome-light", "", "Environment dome light image path")
	flagWidth      = flag.Int("width", 0, "Output image width")
	flagHeight     = flag.Int("height", 0, "Output image height (default: square)")
	flagExtension  = flag.String("extension", "", "Output image extension")
	flagRenderer   = flag.String("renderer", "", "Renderer backend override")
	flagCreateUsdz = flag.Bool("create-usdz-result", false, "Also repackage the subject and image as a usdz archive")
	flagVerbose    = flag.Bool("verbose", false, "Log each pipeline stage")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config. The first positional
// argument is the subject asset path.
func applyFlags(cfg *Config) {
	if flag.NArg() > 0 {
		cfg.Subject = flag.Arg(0)
	}
	if *flagDomeLight != "" {
		cfg.Render.DomeLight = *flagDomeLight
	}
	if *flagWidth > 0 {
		cfg.Output.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Output.Height = *flagHeight
	}
	if *flagExtension != "" {
		cfg.Output.Extension = *flagExtension
	}
	if *flagRenderer != "" {
		cfg.Render.Renderer = *flagRenderer
	}
	if *flagCreateUsdz {
		cfg.Output.CreateUsdzResult = true
	}
	if *flagVerbose {
		cfg.Logging.Level = "debug"
	}
}
