// Package embedded provides embedded static assets for the application.
package embedded

import (
	"embed"
)

// Files contains the dashboard frontend embedded in the Go binary.
// index.html is served for all non-API routes, app.js and style.css
// under /static/.
//
//go:embed frontend
var Files embed.FS
