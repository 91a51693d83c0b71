package pandoc

import (
	"github.com/urfave/cli/v2"
)

// BinaryFlag returns the flag selecting the renderer executable.
func BinaryFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "renderer",
		Usage:   "Renderer executable (default: pandoc)",
		EnvVars: []string{"TEXFORGE_RENDERER"},
	}
}

// EngineFlag returns the flag selecting the PDF engine.
func EngineFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "pdf-engine",
		Usage:   "PDF engine passed to the renderer (default: xelatex)",
		EnvVars: []string{"TEXFORGE_PDF_ENGINE"},
	}
}

// DebugTimeoutFlag returns the timeout flag for the debug (.tex) pass.
func DebugTimeoutFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:    "debug-timeout",
		Usage:   "Timeout of the debug pass producing the intermediate .tex (default: 5m)",
		EnvVars: []string{"TEXFORGE_DEBUG_TIMEOUT"},
	}
}

// FinalTimeoutFlag returns the timeout flag for the final (.pdf) pass.
func FinalTimeoutFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:    "final-timeout",
		Usage:   "Timeout of the final pass producing the PDF (default: 10m)",
		EnvVars: []string{"TEXFORGE_FINAL_TIMEOUT"},
	}
}
