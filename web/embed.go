// Package web holds the static assets served next to the API.
package web

import (
	"embed"
	"io/fs"
)

//go:embed images
var content embed.FS

// ImagesFS returns the bundled images, rooted at the images directory.
func ImagesFS() fs.FS {
	sub, err := fs.Sub(content, "images")
	if err != nil {
		// The directory is embedded at build time.
		panic(err)
	}
	return sub
}
