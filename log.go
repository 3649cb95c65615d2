package keymerge

import (
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var bootID = uuid.NewString()

var defaultLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
	With().
	Timestamp().
	Str("boot_id", bootID).
	Logger()

var (
	logger = &defaultLogger

	configLogger  = getLogger("config")
	kscanLogger   = getLogger("kscan")
	mergeLogger   = getLogger("merge")
	keycodeLogger = getLogger("keycode")
	serialLogger  = getLogger("serial")
	inputLogger   = getLogger("input")
	webLogger     = getLogger("web")
	statsLogger   = getLogger("stats")
)

func getLogger(component string) *zerolog.Logger {
	l := logger.With().Str("component", component).Logger()
	return &l
}

// setLogLevel applies KEYMERGE_LOG_LEVEL, defaulting to info.
func setLogLevel() {
	level := zerolog.InfoLevel
	if s := strings.TrimSpace(os.Getenv("KEYMERGE_LOG_LEVEL")); s != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			logger.Warn().Str("level", s).Msg("invalid log level, using info")
		} else {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
}
