package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Zerolog adapts a zerolog.Logger to the Logger interface.
// Key-value pairs become structured fields; a trailing odd key is logged
// under "extra".
type Zerolog struct {
	log zerolog.Logger
}

// NewZerolog wraps l.
//
// Example:
//
//	zl := zerolog.New(os.Stderr).With().Timestamp().Logger()
//	drv := driver.New(tr, driver.WithLogger(logging.NewZerolog(zl)))
func NewZerolog(l zerolog.Logger) *Zerolog {
	return &Zerolog{log: l}
}

// Debug logs at debug level.
func (z *Zerolog) Debug(msg string, keysAndValues ...interface{}) {
	withFields(z.log.Debug(), keysAndValues).Msg(msg)
}

// Info logs at info level.
func (z *Zerolog) Info(msg string, keysAndValues ...interface{}) {
	withFields(z.log.Info(), keysAndValues).Msg(msg)
}

// Error logs at error level.
func (z *Zerolog) Error(msg string, keysAndValues ...interface{}) {
	withFields(z.log.Error(), keysAndValues).Msg(msg)
}

func withFields(ev *zerolog.Event, kv []interface{}) *zerolog.Event {
	for i := 0; i < len(kv); i += 2 {
		if i+1 >= len(kv) {
			ev = ev.Interface("extra", kv[i])
			break
		}
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		switch v := kv[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		case string:
			ev = ev.Str(key, v)
		case int:
			ev = ev.Int(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	return ev
}
