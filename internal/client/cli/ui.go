package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// formatter colours text unless colour is disabled, in which case the
// plain prefix and suffix are used instead.
type formatter struct {
	color  *color.Color
	prefix string
	suffix string
}

func (f formatter) Sprintf(format string, a ...any) string {
	text := fmt.Sprintf(format, a...)
	if noColor() {
		return f.prefix + text + f.suffix
	}
	return f.color.Sprint(text)
}

func noColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return true
	}
	return color.NoColor
}

var (
	success = formatter{color.New(color.FgGreen), "", ""}
	warning = formatter{color.New(color.FgYellow), "! ", ""}
	danger  = formatter{color.New(color.FgRed, color.Bold), "!! ", ""}
	accent  = formatter{color.New(color.FgCyan), "", ""}
	muted   = formatter{color.New(color.Faint), "(", ")"}
)
