package uploads

import "strings"

// MediaType enumerates the supported attachment kinds.
type MediaType string

const (
	MediaImage MediaType = "IMAGE"
	MediaVideo MediaType = "VIDEO"
)

// Media is an uploaded attachment. PostID stays nil until a post claims it.
type Media struct {
	ID              string    `gorm:"column:id;primaryKey;size:190;not null"`
	PostID          *string   `gorm:"column:post_id;size:190;index"`
	OwnerID         string    `gorm:"column:owner_id;size:190;not null;index"`
	ObjectKey       string    `gorm:"column:object_key;size:512;not null"`
	URL             string    `gorm:"column:url;size:1024;not null"`
	Type            MediaType `gorm:"column:type;size:16;not null"`
	CreatedAtMillis int64     `gorm:"column:created_at_ms;not null;index"`
}

// TableName exposes the table backing uploaded media.
func (Media) TableName() string {
	return "media"
}

// Limits describe the accepted size per upload kind.
type Limits struct {
	AvatarBytes int64
	ImageBytes  int64
	VideoBytes  int64
}

// DefaultLimits are 512KB avatars, 4MB images and 64MB videos.
var DefaultLimits = Limits{
	AvatarBytes: 512 << 10,
	ImageBytes:  4 << 20,
	VideoBytes:  64 << 20,
}

func mediaTypeOf(contentType string) (MediaType, bool) {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return MediaImage, true
	case strings.HasPrefix(contentType, "video/"):
		return MediaVideo, true
	default:
		return "", false
	}
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	default:
		return ""
	}
}
