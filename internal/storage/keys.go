package storage

import (
	"Dyvine/model"
	"Dyvine/utils"
	"encoding/base64"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"
)

const maxNameBytes = 48

var imageExts = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "webp": true, "gif": true, "heic": true, "avif": true,
}

// MediaKey builds {category}/{user_id}/{YYYYMMDD}_{safe_name}_{uuid8}.{ext}.
// The name is sanitized and base64url encoded so any post description maps
// to a portable key.
func MediaKey(category model.Category, userID, name, ext string, now time.Time) string {
	safe := base64.RawURLEncoding.EncodeToString([]byte(utils.Truncate(utils.SanitizeFilename(name), maxNameBytes)))
	return fmt.Sprintf("%s/%s/%s_%s_%s.%s",
		category,
		utils.SanitizeFilename(userID),
		now.UTC().Format("20060102"),
		safe,
		utils.ShortUUID(),
		ext,
	)
}

// LivestreamKey builds livestreams/{user_id}/{stream_id}/{unix_millis}.{ext}.
// ext names the captured container; recordings are not remuxed.
func LivestreamKey(userID, streamID, ext string, startedAt time.Time) string {
	return fmt.Sprintf("livestreams/%s/%s/%d.%s", utils.SanitizeFilename(userID), streamID, startedAt.UnixMilli(), ext)
}

// MediaExt picks the file extension of a media file. Videos are always stored
// as mp4. Images keep the extension of their url, or one derived from the
// response content type.
func MediaExt(kind model.MediaKind, rawURL, contentType string) string {
	if kind == model.MediaVideo {
		return "mp4"
	}
	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
		if imageExts[ext] {
			return ext
		}
	}
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			switch mediaType {
			case "image/jpeg":
				return "jpg"
			case "image/png":
				return "png"
			case "image/webp":
				return "webp"
			case "image/gif":
				return "gif"
			}
			if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
				return strings.TrimPrefix(exts[0], ".")
			}
		}
	}
	return "bin"
}

// Metadata builds the object metadata stored next to every upload.
func Metadata(author string, category string, contentType string, now time.Time) map[string]string {
	return map[string]string{
		"author":       base64.StdEncoding.EncodeToString([]byte(author)),
		"category":     category,
		"content-type": contentType,
		"created-date": now.UTC().Format(time.RFC3339),
		"source":       "douyin",
		"version":      "1.0.0",
	}
}
