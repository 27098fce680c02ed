package service

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

const thumbnailSize = 320

var thumbnailExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".tif": {}, ".tiff": {},
}

func isImageFilename(filename string) bool {
	_, ok := thumbnailExts[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// makeThumbnail scales an image down to fit 320x320 and encodes it as JPEG.
func makeThumbnail(blob []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(blob), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	thumb := imaging.Thumbnail(img, thumbnailSize, thumbnailSize, imaging.Lanczos)
	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, thumb, imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
