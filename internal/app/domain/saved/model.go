package saved

import (
	"time"

	"github.com/mynews-app/service_layer/internal/app/domain/article"
)

// SavedArticle is stored at saved_articles/{uid}/articles/{encodedUrl}.
type SavedArticle struct {
	Article   article.Article `json:"article" firestore:"article"`
	Timestamp time.Time       `json:"timestamp" firestore:"timestamp"`
}

// CollectionPath returns the saved article collection of uid.
func CollectionPath(uid string) string {
	return RootPath(uid) + "/articles"
}

// Path returns the saved record for uid and the article URL.
func Path(uid, articleURL string) string {
	return CollectionPath(uid) + "/" + article.EncodeURL(articleURL)
}

// RootPath returns the saved articles root document of uid.
func RootPath(uid string) string {
	return "saved_articles/" + uid
}
