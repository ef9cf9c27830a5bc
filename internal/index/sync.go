package index

import (
	"log/slog"
	"strings"

	"github.com/starford/synapse/internal/checksum"
	"github.com/starford/synapse/internal/frontmatter"
	"github.com/starford/synapse/internal/models"
	"github.com/starford/synapse/internal/storage"
)

// Sync walks the vault and brings the catalog up to date:
//   - new/changed documents are parsed and upserted
//   - documents removed from disk are deleted from the catalog
func Sync(db Catalog, store storage.Provider, logger *slog.Logger) error {
	infos, err := store.List("")
	if err != nil {
		return err
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(infos))
	indexed := 0
	for _, info := range infos {
		disk[info.Path] = struct{}{}
		if checksums[info.Path] == info.Checksum {
			continue
		}
		data, err := store.Read(info.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", info.Path), slog.String("error", err.Error()))
			continue
		}
		if err := Document(db, info, data, logger); err != nil {
			logger.Warn("sync: index failed", slog.String("path", info.Path), slog.String("error", err.Error()))
			continue
		}
		indexed++
	}

	removed := 0
	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.Delete(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		removed++
	}

	logger.Info("sync: done",
		slog.Int("documents", len(infos)),
		slog.Int("indexed", indexed),
		slog.Int("removed", removed))
	return nil
}

// Document catalogues data as the current content of the document described
// by info. A malformed header is logged and the document is indexed with
// empty metadata so it stays searchable.
func Document(db Catalog, info models.DocumentInfo, data []byte, logger *slog.Logger) error {
	meta, _, err := frontmatter.Parse(data)
	if err != nil {
		logger.Warn("index: malformed header", slog.String("path", info.Path), slog.String("error", err.Error()))
		meta = frontmatter.NewMetadata()
	}
	category := meta.String("category")
	if category == "" {
		category = info.Folder
	}
	title := meta.String("title")
	if title == "" {
		title = strings.TrimSuffix(info.Filename, ".md")
	}
	return db.Upsert(Row{
		Path:      info.Path,
		Folder:    info.Folder,
		Filename:  info.Filename,
		Title:     title,
		Category:  category,
		Tags:      meta.Tags(),
		Size:      int64(len(data)),
		Checksum:  checksum.Sum(data),
		Content:   data,
		UpdatedAt: info.UpdatedAt,
	})
}
