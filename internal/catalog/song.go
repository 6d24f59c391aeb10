// Package catalog derives song metadata from bucket object names. The bucket
// is the only source of truth: a file stored as "Album Name/track.mp3" yields
// album "Album Name" and title "track"; a file with no folder prefix falls
// into the "Unknown" album.
package catalog

import (
	"strings"

	"github.com/tunecrate/tunecrate/internal/b2"
)

// UnknownAlbum is the album assigned to files stored without a folder prefix.
const UnknownAlbum = "Unknown"

// Song is one playable track in the library. ID carries the upstream fileId,
// which delete requests must send back alongside the object name; FileName is
// the full object name the stream and delete routes address files by.
// UploadedAt is milliseconds since the epoch, as the bucket reports it.
type Song struct {
	ID         string `json:"id"`
	FileName   string `json:"fileName"`
	Name       string `json:"name"`
	Album      string `json:"album"`
	Size       int64  `json:"size"`
	UploadedAt int64  `json:"uploadedAt"`
}

// FromFile builds a Song from one bucket listing entry.
func FromFile(f b2.FileInfo) Song {
	album, title := splitName(f.Name)
	return Song{
		ID:         f.ID,
		FileName:   f.Name,
		Name:       title,
		Album:      album,
		Size:       f.ContentLength,
		UploadedAt: f.UploadTimestamp,
	}
}

// FromFiles maps a bucket listing to songs, skipping anything that is not a
// playable media file (cover art, playlists, stray uploads). The result is
// never nil so the list endpoint serialises an empty library as [] rather
// than null.
func FromFiles(files []b2.FileInfo) []Song {
	songs := make([]Song, 0, len(files))
	for _, f := range files {
		if !IsMedia(f.Name) {
			continue
		}
		songs = append(songs, FromFile(f))
	}
	return songs
}

// IsMedia reports whether an object name carries the accepted media
// extension, matched case-insensitively.
func IsMedia(objectName string) bool {
	return strings.HasSuffix(strings.ToLower(objectName), ".mp3")
}

// splitName separates an object name into album and display title. Only the
// first slash matters; deeper slashes stay part of the title.
func splitName(objectName string) (album, title string) {
	album = UnknownAlbum
	title = objectName
	if i := strings.Index(objectName, "/"); i >= 0 {
		if folder := objectName[:i]; folder != "" {
			album = folder
		}
		title = objectName[i+1:]
	}
	return album, stripExtension(title)
}

// stripExtension removes a trailing .mp3 regardless of case.
func stripExtension(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".mp3") {
		return name[:len(name)-4]
	}
	return name
}
