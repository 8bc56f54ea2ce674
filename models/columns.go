package models

// StringSet is an insertion-ordered set of usernames stored as a JSON array column.
type StringSet []string

// Contains reports whether v is a member.
func (s StringSet) Contains(v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Add returns the set with v appended unless already present.
func (s StringSet) Add(v string) StringSet {
	if s.Contains(v) {
		return s
	}
	return append(s, v)
}

// Remove returns the set without v.
func (s StringSet) Remove(v string) StringSet {
	out := make(StringSet, 0, len(s))
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// CommentSummary is the denormalized copy of a comment embedded in a post.
type CommentSummary struct {
	CommentID string `json:"comment_id"`
	Author    string `json:"username"`
	Text      string `json:"text"`
}

// CommentSummaries is the ordered embedded comment list, stored as a JSON column.
type CommentSummaries []CommentSummary

// IndexOf returns the position of the summary with the given comment id, or -1.
func (c CommentSummaries) IndexOf(commentID string) int {
	for i, s := range c {
		if s.CommentID == commentID {
			return i
		}
	}
	return -1
}

// Without returns the list minus every summary for commentID.
func (c CommentSummaries) Without(commentID string) CommentSummaries {
	out := make(CommentSummaries, 0, len(c))
	for _, s := range c {
		if s.CommentID != commentID {
			out = append(out, s)
		}
	}
	return out
}
