package ingest

import (
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	// imaging registers jpeg/png/gif/bmp/tiff; webp is decode-only.
	_ "golang.org/x/image/webp"
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// AllowedExtension is the cheap metadata-only pre-filter applied before an
// entry is extracted. Case-insensitive.
func AllowedExtension(name string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(name))]
}

// decodeCanonical decodes the entry and verifies it has exactly the
// canonical dimensions.
func decodeCanonical(r io.Reader, width, height int) (image.Image, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return nil, fmt.Errorf("image is %dx%d, want %dx%d", b.Dx(), b.Dy(), width, height)
	}
	return img, nil
}
