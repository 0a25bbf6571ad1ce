package internal

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	exit             = os.Exit
)

// Fatal will Echo the message and os.Exit with code 1.
func Fatal(msg string, args ...any) {
	Echo(msg, args...)
	exit(1)
}

// Check calls Fatal with the message and error if err is not nil.
func Check(err error, msg string) {
	if err != nil {
		Fatal("%s: %v", msg, err)
	}
}

// Echo will emit the given message to stderr without any logging formatting.
func Echo(msg string, args ...any) {
	_, _ = fmt.Fprintf(stderr, line(msg), args...)
}

// Print emits program output to stdout.
func Print(msg string, args ...any) {
	_, _ = fmt.Fprintf(stdout, line(msg), args...)
}

func line(msg string) string {
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	return msg
}
