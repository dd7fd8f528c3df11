package tagger

import (
	"context"

	"github.com/bleemesser/icloudimport/media"
)

// LivePhoto tags both halves of a live photo.
type LivePhoto struct {
	Image *ImageTagger
	Video *VideoTagger
}

func (l LivePhoto) TagImage(ctx context.Context, path, reference string, id media.ContentIdentifier) error {
	return l.Image.TagImage(ctx, path, reference, id)
}

func (l LivePhoto) TagVideo(ctx context.Context, path string, id media.ContentIdentifier) error {
	return l.Video.TagVideo(ctx, path, id)
}

func (l LivePhoto) Close() error {
	return l.Image.Close()
}
