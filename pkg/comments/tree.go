// Package comments assembles comment threads and removes comment subtrees together with
// the references other records keep to them.
package comments

import (
	"fmt"
	"sort"

	"github.com/gofrs/uuid"

	"forum/pkg/models"
)

var (
	ErrForbidden      = fmt.Errorf("not allowed to modify this comment")
	ErrStorageFailure = fmt.Errorf("comment storage failure")
)

// ConsistencyError reports a comment set that violates the identity rules of a thread.
type ConsistencyError struct {
	CommentID uuid.UUID
	Reason    string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("inconsistent comment %v: %s", e.CommentID, e.Reason)
}

// Node is a comment together with its direct replies ordered by creation time.
type Node struct {
	models.Comment
	Replies []*Node `json:"replies"`
}

// TreeOptions tune BuildTree. MaxDepth limits how deep replies are linked; roots have depth 0 and
// zero means no limit.
type TreeOptions struct {
	MaxDepth int
}

// BuildTree links the comments of one post into a forest.
//
// Comments are taken in creation order. A comment whose parent is absent from the set is dropped
// together with its descendants. Replies deeper than opts.MaxDepth are not linked. A duplicate id
// or a comment that belongs to another post yields a *ConsistencyError.
func BuildTree(postID uuid.UUID, comments []models.Comment, opts TreeOptions) ([]*Node, error) {
	sorted := make([]models.Comment, len(comments))
	copy(sorted, comments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	nodes := make(map[uuid.UUID]*Node, len(sorted))
	for _, c := range sorted {
		if c.Post != postID {
			return nil, &ConsistencyError{CommentID: c.ID, Reason: fmt.Sprintf("belongs to post %v", c.Post)}
		}
		if _, ok := nodes[c.ID]; ok {
			return nil, &ConsistencyError{CommentID: c.ID, Reason: "duplicate id"}
		}
		nodes[c.ID] = &Node{Comment: c, Replies: []*Node{}}
	}

	roots := make([]*Node, 0)
	for _, c := range sorted {
		n := nodes[c.ID]
		if !c.IsReply() {
			roots = append(roots, n)
			continue
		}
		if parent, ok := nodes[*c.ParentComment]; ok && parent != n {
			parent.Replies = append(parent.Replies, n)
		}
	}

	if opts.MaxDepth > 0 {
		prune(roots, opts.MaxDepth)
	}

	return roots, nil
}

// prune cuts reply lists below maxDepth, walking level by level from the roots.
func prune(roots []*Node, maxDepth int) {
	level := roots
	for depth := 0; len(level) > 0; depth++ {
		var next []*Node
		for _, n := range level {
			if depth == maxDepth {
				n.Replies = []*Node{}
				continue
			}
			next = append(next, n.Replies...)
		}
		level = next
	}
}

// Count returns the number of nodes reachable from the given roots.
func Count(roots []*Node) int {
	n := 0
	stack := append([]*Node{}, roots...)
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n++
		stack = append(stack, top.Replies...)
	}
	return n
}
