package users

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

const (
	maxDisplayNameLength = 64
	maxBioLength         = 1000
	maxUsernameLength    = 32
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// User is the persisted account row.
type User struct {
	ID              string `gorm:"column:id;primaryKey;size:190;not null"`
	Username        string `gorm:"column:username;size:64;not null;uniqueIndex"`
	DisplayName     string `gorm:"column:display_name;size:320;not null"`
	Bio             string `gorm:"column:bio;type:text;not null;default:''"`
	AvatarURL       string `gorm:"column:avatar_url;size:1024;not null;default:''"`
	AvatarKey       string `gorm:"column:avatar_key;size:512;not null;default:''"`
	Email           string `gorm:"column:email;size:320"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null;index"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// CreatedAt returns the creation time in UTC.
func (u User) CreatedAt() time.Time {
	return time.UnixMilli(u.CreatedAtMillis).UTC()
}

// ProfileUpdate carries the editable profile fields.
type ProfileUpdate struct {
	DisplayName string
	Bio         string
}

func (p ProfileUpdate) normalized() ProfileUpdate {
	return ProfileUpdate{
		DisplayName: normalize(p.DisplayName),
		Bio:         normalize(p.Bio),
	}
}

// GenerateDisplayName turns a username such as "jane_smith" into "Jane Smith".
func GenerateDisplayName(username string) string {
	words := strings.FieldsFunc(username, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	for index, word := range words {
		runes := []rune(strings.ToLower(word))
		runes[0] = unicode.ToUpper(runes[0])
		words[index] = string(runes)
	}
	return strings.Join(words, " ")
}

// ValidUsername reports whether value may be used as a username.
func ValidUsername(value string) bool {
	return len(value) <= maxUsernameLength && usernamePattern.MatchString(value)
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
