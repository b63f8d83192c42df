package reaction

import (
	"time"

	"github.com/mynews-app/service_layer/internal/app/domain/article"
)

// Reaction is the single current emoji of a user on an article, stored at
// reactions/{uid}/users_reactions/{encodedUrl}. No document means no reaction.
type Reaction struct {
	UserID    string          `json:"userID" firestore:"userID"`
	Article   article.Article `json:"article" firestore:"article"`
	Reaction  string          `json:"reaction" firestore:"reaction"`
	Timestamp time.Time       `json:"timestamp" firestore:"timestamp"`
}

// Result describes the transition caused by one SetReaction call.
type Result struct {
	IsFirstReaction bool `json:"isFirstReaction"`
	WasSwitched     bool `json:"wasSwitched"`
	WasDeleted      bool `json:"wasDeleted"`
}

// Kind names the transition for logs and metrics.
func (r Result) Kind() string {
	switch {
	case r.IsFirstReaction:
		return "first"
	case r.WasSwitched:
		return "switched"
	case r.WasDeleted:
		return "deleted"
	default:
		return "unchanged"
	}
}

// CollectionPath returns the reaction collection of uid.
func CollectionPath(uid string) string {
	return RootPath(uid) + "/users_reactions"
}

// Path returns the reaction document for uid on the article URL.
func Path(uid, articleURL string) string {
	return CollectionPath(uid) + "/" + article.EncodeURL(articleURL)
}

// RootPath returns the reactions root document of uid.
func RootPath(uid string) string {
	return "reactions/" + uid
}
