package classify

import (
	"context"
	"fmt"

	"github.com/bleemesser/icloudimport/media"
	"github.com/bleemesser/icloudimport/util"
)

// pair imports a still either alone or, when a companion video sits next to
// it, as a live photo sharing a freshly minted content identifier.
func (e *Engine) pair(ctx context.Context, item media.MediaItem, out *media.Outcome) error {
	still := item.Path()
	if !util.Exists(still) {
		return nil
	}

	// an earlier still with the same stem may already have taken the video
	if item.Paired() && !util.Exists(item.Video) {
		item.Video = ""
	}
	if !item.Paired() {
		out.Imported = e.importSingle(ctx, still)
		return nil
	}
	video := item.Video

	id := e.newID()
	out.Identifier = id
	defer e.purge(item.Root)

	if err := e.tagger.TagImage(ctx, still, e.reference, id); err != nil {
		return fmt.Errorf("tag image: %w", err)
	}

	if err := e.tagger.TagVideo(ctx, video, id); err != nil {
		e.logger.Error("video tagging failed, importing still alone",
			"file", item.Name,
			"video", video,
			"error", err,
		)
		out.Imported = e.importSingle(ctx, still)
		return nil
	}

	e.logger.Info("importing live photo pair", "still", still, "video", video, "content_identifier", id.String())
	out.Paired = true
	out.Imported = e.library.ImportPair(ctx, still, video, media.AlbumImported)
	if !out.Imported {
		e.logger.Warn("live photo import failed, files left in place", "still", still, "video", video)
	}
	return nil
}

func (e *Engine) importSingle(ctx context.Context, path string) bool {
	e.logger.Info("importing file", "path", path)
	ok := e.library.ImportSingle(ctx, path, media.AlbumImported)
	if !ok {
		e.logger.Warn("import failed, file left in place", "path", path)
	}
	return ok
}

func (e *Engine) purge(dir string) {
	removed, err := util.PurgeBackups(dir)
	if err != nil {
		e.logger.Warn("could not remove tagging backups", "folder", dir, "error", err)
	}
	for _, path := range removed {
		e.logger.Debug("removed backup", "path", path)
	}
}
