package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init points the global logger at path, or stdout when path is empty.
func Init(level zerolog.Level, path string) {
	log.Logger = New(level, open(path))

	if level == zerolog.DebugLevel {
		log.Debug().Msg("Log level set to DEBUG")
	}
}

func New(level zerolog.Level, w io.Writer) zerolog.Logger {
	multi := zerolog.MultiLevelWriter(w)
	return zerolog.New(multi).Level(level).With().Timestamp().Logger()
}

func open(path string) io.Writer {
	if path == "" {
		return os.Stdout
	}
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		panic(fmt.Errorf("failed to open log file: %w", err))
	}
	return logFile
}
