package feed

import "time"

// Post is one feed post as returned by the source
type Post struct {
	ID        string
	Message   string
	CreatedAt time.Time // zero when the source didn't provide one
}

// Comment is one comment, possibly with inline replies
type Comment struct {
	ID        string
	Message   string
	CreatedAt time.Time
	Replies   []Comment
}

// PostsPage is one page of the posts feed, NextCursor empty at the end
type PostsPage struct {
	Posts      []Post
	NextCursor string
}

// CommentsPage is one page of a post's comment tree
type CommentsPage struct {
	Comments   []Comment
	NextCursor string
}
