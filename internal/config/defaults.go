package config

import (
	"os"
	"path/filepath"
)

const (
	defaultFPS                  = 10
	defaultQuality              = "medium"
	defaultVerifyTimeoutSeconds = 3
	defaultCancelGraceSeconds   = 5
	defaultStderrTailKB         = 8
	defaultLogLevel             = "info"
)

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Tools: Tools{
			VerifyTimeoutSeconds: defaultVerifyTimeoutSeconds,
		},
		Pipeline: Pipeline{
			ScratchDir:         filepath.Join(os.TempDir(), "gif-pipeline"),
			CancelGraceSeconds: defaultCancelGraceSeconds,
			StderrTailKB:       defaultStderrTailKB,
		},
		Defaults: Defaults{
			FPS:     defaultFPS,
			Quality: defaultQuality,
		},
		Logging: Logging{
			Level: defaultLogLevel,
			Dir:   filepath.Join(os.TempDir(), "gif-pipeline-logs"),
		},
	}
}
