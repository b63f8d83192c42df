package friend

import "time"

// Edge is the one-way friend record at friends/{uid}/users_friends/{friendUid}.
// Username is a snapshot taken when the friend was added.
type Edge struct {
	Username  string    `json:"username" firestore:"username"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
}

// Friend is an edge with its target uid, as returned to clients.
type Friend struct {
	UID       string    `json:"uid"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// CollectionPath returns the edge collection owned by uid.
func CollectionPath(uid string) string {
	return RootPath(uid) + "/users_friends"
}

// EdgePath returns the path of the edge from uid to friendUID.
func EdgePath(uid, friendUID string) string {
	return CollectionPath(uid) + "/" + friendUID
}

// RootPath returns the friends root document of uid.
func RootPath(uid string) string {
	return "friends/" + uid
}
