package article

import (
	"errors"
	"net/url"
	"strings"
)

// RemovedMarker is the title the news API uses for withdrawn articles.
const RemovedMarker = "[Removed]"

// ErrMissingURL is returned when an article has no URL to key it by.
var ErrMissingURL = errors.New("article url is required")

// Source identifies the publisher of an article.
type Source struct {
	ID   string `json:"id" firestore:"id"`
	Name string `json:"name" firestore:"name"`
}

// Article is a news article as returned by the news API. The URL is its
// identity.
type Article struct {
	Source      Source `json:"source" firestore:"source"`
	Author      string `json:"author" firestore:"author"`
	Title       string `json:"title" firestore:"title"`
	Description string `json:"description" firestore:"description"`
	URL         string `json:"url" firestore:"url"`
	URLToImage  string `json:"urlToImage" firestore:"urlToImage"`
	PublishedAt string `json:"publishedAt" firestore:"publishedAt"`
	Content     string `json:"content" firestore:"content"`
}

// Validate checks that the article can be stored.
func (a Article) Validate() error {
	if strings.TrimSpace(a.URL) == "" {
		return ErrMissingURL
	}
	return nil
}

// Removed reports whether the article is a withdrawn placeholder.
func (a Article) Removed() bool {
	return a.Title == RemovedMarker || a.URL == "https://removed.com"
}

// Key returns the document id derived from the article URL.
func (a Article) Key() string {
	return EncodeURL(a.URL)
}

// EncodeURL percent-encodes an article URL so it can be used as a document
// id. Document ids must not contain path separators or be "." or "..", so
// dot-only keys have their dots escaped too.
func EncodeURL(raw string) string {
	key := url.QueryEscape(raw)
	if strings.Trim(key, ".") == "" {
		return strings.ReplaceAll(key, ".", "%2E")
	}
	return key
}

// DecodeURL reverses EncodeURL.
func DecodeURL(key string) (string, error) {
	return url.QueryUnescape(key)
}
