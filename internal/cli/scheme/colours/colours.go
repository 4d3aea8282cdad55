package colours

import "github.com/fatih/color"

// Color scheme for the CLI and the scene renderer
var (
	Title     = color.New(color.FgCyan, color.Bold)
	Speaker   = color.New(color.FgMagenta, color.Bold)
	Narration = color.New(color.FgWhite)
	Prompt    = color.New(color.FgGreen, color.Bold)
	Error     = color.New(color.FgRed, color.Bold)
	Success   = color.New(color.FgGreen)
	Info      = color.New(color.FgBlue)
	Warning   = color.New(color.FgYellow)
)
