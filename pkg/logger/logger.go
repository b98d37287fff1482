package logger

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// ANSI color codes, used only by Section/Banner which print directly rather
// than going through logrus.
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorWhite  = "\033[37m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[90m"
)

// Log levels, kept as the original's iota block so call sites comparing
// against these names don't need to change.
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSuccess
)

var base = logrus.New()

func init() {
	base.SetOutput(os.Stdout)
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
}

// SetLevel sets the minimum log level, accepting one of the Level constants
// above.
func SetLevel(level int) {
	switch level {
	case LevelDebug:
		base.SetLevel(logrus.DebugLevel)
	case LevelInfo, LevelSuccess:
		base.SetLevel(logrus.InfoLevel)
	case LevelWarn:
		base.SetLevel(logrus.WarnLevel)
	case LevelError:
		base.SetLevel(logrus.ErrorLevel)
	}
}

// SetTimeFormat sets the timestamp layout used on each line.
func SetTimeFormat(format string) {
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: format,
	})
}

// ShowTime enables or disables the timestamp prefix.
func ShowTime(show bool) {
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    show,
		DisableTimestamp: !show,
		TimestampFormat:  "15:04:05",
	})
}

// Entry returns the underlying *logrus.Logger for packages that want a
// structured *logrus.Entry (e.g. session, lobby) instead of the printf-style
// helpers below.
func Entry() *logrus.Logger { return base }

// Debug logs a debug message.
func Debug(format string, args ...interface{}) {
	base.Debugf(format, args...)
}

// Info logs an informational message.
func Info(format string, args ...interface{}) {
	base.Infof(format, args...)
}

// Warn logs a warning message.
func Warn(format string, args ...interface{}) {
	base.Warnf(format, args...)
}

// Error logs an error message.
func Error(format string, args ...interface{}) {
	base.Errorf(format, args...)
}

// Success logs a success message at info level, tagged so it stands out in
// the field set.
func Success(format string, args ...interface{}) {
	base.WithField("result", "success").Infof(format, args...)
}

// Fatal logs a fatal error and exits.
func Fatal(format string, args ...interface{}) {
	base.Fatalf(format, args...)
}

// InfoCyan logs an info message tagged for a highlighted rendering.
func InfoCyan(format string, args ...interface{}) {
	base.WithField("highlight", "cyan").Infof(format, args...)
}

// Section prints a section header directly to stdout, outside the logrus
// line format, for CLI start-up banners.
func Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n%s╔%s╗%s\n", ColorCyan, border, ColorReset)
	fmt.Printf("%s║%s %-57s %s║%s\n", ColorCyan, ColorReset, title, ColorCyan, ColorReset)
	fmt.Printf("%s╚%s╝%s\n\n", ColorCyan, border, ColorReset)
}

// Banner prints the application banner.
func Banner(title, version string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   ██████╗ ███████╗███████╗██████╗                        ║
║   ██╔══██╗██╔════╝██╔════╝██╔══██╗                       ║
║   ██████╔╝█████╗  █████╗  ██████╔╝                       ║
║   ██╔══██╗██╔══╝  ██╔══╝  ██╔══██╗                       ║
║   ██████╔╝███████╗███████╗██║  ██║                       ║
║   ╚═════╝ ╚══════╝╚══════╝╚═╝  ╚═╝                       ║
║                                                           ║
║              %s%-37s%s║
║                    %sVersion %-7s%s                      ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, ColorCyan, title, ColorReset, ColorGreen, version, ColorReset)
}
