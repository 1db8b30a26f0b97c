package api

import "fmt"

const (
	maxImages     = 4
	maxImageBytes = 5 * 1024 * 1024
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// validateImages applies structural checks to declared attachments: count,
// media type and declared size. Byte-level payload validation is not done
// here.
func validateImages(images []ImagePayload) error {
	if len(images) > maxImages {
		return fmt.Errorf("too many images: %d (max %d)", len(images), maxImages)
	}
	for i, img := range images {
		if img.Data == "" {
			return fmt.Errorf("image %d has no data", i)
		}
		if !allowedImageTypes[img.MimeType] {
			return fmt.Errorf("image %d has unsupported media type %q", i, img.MimeType)
		}
		if img.Size <= 0 || img.Size > maxImageBytes {
			return fmt.Errorf("image %d declared size %d is outside the allowed range (1-%d bytes)", i, img.Size, maxImageBytes)
		}
	}
	return nil
}
