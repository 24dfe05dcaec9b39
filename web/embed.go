package web

import "embed"

// Templates embeds the HTML templates of printable reports.
//
//go:embed templates/reports/*.html
var Templates embed.FS
