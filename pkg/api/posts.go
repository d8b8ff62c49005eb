package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"

	"forum/pkg/logger"
	"forum/pkg/models"
	"forum/pkg/storage"
)

func (api *API) postsHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))

	posts, err := api.db.Posts(r.Context())
	if err != nil {
		api.storageError(w, err, "postsHandler", sID)
		return
	}

	writeJSON(w, http.StatusOK, newPostResponses(posts), "postsHandler", sID)
}

// filterPostsHandler serves paginated searches. Default: first page of 10 newest posts.
func (api *API) filterPostsHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))

	f, msg := parsePostFilter(r)
	if msg != "" {
		httpError(w, msg, http.StatusBadRequest)
		log.Debugf("[filterPostsHandler][%s] bad query: %s", sID, msg)
		return
	}

	posts, total, err := api.db.FilterPosts(r.Context(), f)
	if err != nil {
		api.storageError(w, err, "filterPostsHandler", sID)
		return
	}

	resp := postsPageResponse{
		Page:       f.Page,
		TotalPages: storage.Pages(total, f.Limit),
		TotalPosts: total,
		Posts:      newPostResponses(posts),
	}
	writeJSON(w, http.StatusOK, resp, "filterPostsHandler", sID)
}

// parsePostFilter reads the search query. A non-empty message means the query is invalid.
func parsePostFilter(r *http.Request) (storage.PostFilter, string) {
	q := r.URL.Query()
	f := storage.PostFilter{
		Keyword: strings.TrimSpace(q.Get("keyword")),
		Topic:   strings.TrimSpace(q.Get("topic")),
		SortBy:  storage.SortCreatedAt,
		Page:    1,
		Limit:   10,
	}

	var err error
	if s := q.Get("page"); s != "" {
		if f.Page, err = strconv.Atoi(s); err != nil || f.Page < 1 {
			return f, "Invalid page parameter"
		}
	}
	if s := q.Get("limit"); s != "" {
		if f.Limit, err = strconv.Atoi(s); err != nil || f.Limit < 1 {
			return f, "Invalid limit parameter"
		}
		if f.Limit > maxPostsLimit {
			return f, "Limit parameter is too big"
		}
	}
	if s := q.Get("minLikes"); s != "" {
		if f.MinLikes, err = strconv.Atoi(s); err != nil || f.MinLikes < 0 {
			return f, "Invalid minLikes parameter"
		}
	}
	if s := q.Get("author"); s != "" {
		if f.Author, err = uuid.FromString(s); err != nil {
			return f, "Invalid author parameter"
		}
	}

	if s := q.Get("sortBy"); s != "" {
		switch s {
		case storage.SortCreatedAt, storage.SortUpdatedAt, storage.SortTitle, storage.SortLikes:
			f.SortBy = s
		default:
			return f, "Invalid sortBy parameter"
		}
	}
	switch strings.ToLower(q.Get("sortOrder")) {
	case "", "desc":
	case "asc":
		f.Asc = true
	default:
		return f, "Invalid sortOrder parameter"
	}

	return f, ""
}

func (api *API) postHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))

	post, err := api.db.Post(r.Context(), pathID(r))
	if err != nil {
		api.storageError(w, err, "postHandler", sID)
		return
	}

	writeJSON(w, http.StatusOK, newPostResponse(post), "postHandler", sID)
}

func (api *API) createPostHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))
	user, _ := currentUser(r.Context())

	var req createPostRequest
	if !api.decode(w, r, &req, "createPostHandler", sID) {
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		httpError(w, "Title is required", http.StatusBadRequest)
		return
	}
	if api.contentRejected(w, r, "createPostHandler", sID, req.Title, req.Content) {
		return
	}

	post, err := api.db.CreatePost(r.Context(), models.Post{
		Title:   req.Title,
		Content: req.Content,
		Author:  user.ID,
		Topics:  normalizeTopics(req.Topics),
	})
	if err != nil {
		api.storageError(w, err, "createPostHandler", sID)
		return
	}

	writeJSON(w, http.StatusCreated, newPostResponse(post), "createPostHandler", sID)
	log.Debugf("[createPostHandler][%s] post %v created by %v", sID, post.ID, user.ID)
}

func (api *API) updatePostHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))
	user, _ := currentUser(r.Context())

	post, ok := api.ownedPost(w, r, user, true, "updatePostHandler", sID)
	if !ok {
		return
	}

	var req updatePostRequest
	if !api.decode(w, r, &req, "updatePostHandler", sID) {
		return
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			httpError(w, "Title must not be blank", http.StatusBadRequest)
			return
		}
		req.Title = &title
	}

	var texts []string
	if req.Title != nil {
		texts = append(texts, *req.Title)
	}
	if req.Content != nil {
		texts = append(texts, *req.Content)
	}
	if api.contentRejected(w, r, "updatePostHandler", sID, texts...) {
		return
	}

	updated, err := api.db.UpdatePost(r.Context(), post.ID, storage.PostUpdate{
		Title:   req.Title,
		Content: req.Content,
		Topics:  normalizeTopics(req.Topics),
	})
	if err != nil {
		api.storageError(w, err, "updatePostHandler", sID)
		return
	}

	writeJSON(w, http.StatusOK, newPostResponse(updated), "updatePostHandler", sID)
}

func (api *API) deletePostHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))
	user, _ := currentUser(r.Context())

	post, ok := api.ownedPost(w, r, user, true, "deletePostHandler", sID)
	if !ok {
		return
	}

	if err := api.removePost(r.Context(), post); err != nil {
		api.storageError(w, err, "deletePostHandler", sID)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Post deleted"}, "deletePostHandler", sID)
	log.Infof("[deletePostHandler][%s] post %v deleted by %v", sID, post.ID, user.ID)
}

// moderatePostHandler removes any post. Role checks happen in the route middleware.
func (api *API) moderatePostHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))
	user, _ := currentUser(r.Context())

	post, err := api.db.Post(r.Context(), pathID(r))
	if err != nil {
		api.storageError(w, err, "moderatePostHandler", sID)
		return
	}

	if err := api.removePost(r.Context(), post); err != nil {
		api.storageError(w, err, "moderatePostHandler", sID)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Post removed by moderation"}, "moderatePostHandler", sID)
	log.Infof("[moderatePostHandler][%s] post %v removed by %s %v", sID, post.ID, user.Role, user.ID)
}

func (api *API) reactionHandler(reaction models.Reaction) http.HandlerFunc {
	handler := string(reaction) + "Handler"

	return func(w http.ResponseWriter, r *http.Request) {
		sID := logger.Shorten(logger.RequestID(r.Context()))
		user, _ := currentUser(r.Context())

		post, err := api.db.Post(r.Context(), pathID(r))
		if err != nil {
			api.storageError(w, err, handler, sID)
			return
		}

		post.React(user.ID, reaction)

		post, err = api.db.SetReactions(r.Context(), post.ID, post.Likes, post.Dislikes)
		if err != nil {
			api.storageError(w, err, handler, sID)
			return
		}

		resp := reactionResponse{
			Likes:    len(post.Likes),
			Dislikes: len(post.Dislikes),
			Liked:    post.LikedBy(user.ID),
			Disliked: post.DislikedBy(user.ID),
		}
		writeJSON(w, http.StatusOK, resp, handler, sID)
	}
}

func (api *API) uploadPostImagesHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))
	user, _ := currentUser(r.Context())

	post, ok := api.ownedPost(w, r, user, false, "uploadPostImagesHandler", sID)
	if !ok {
		return
	}

	room := maxPostImages - len(post.Images)
	if room <= 0 {
		httpError(w, "Post already has the maximum number of images", http.StatusBadRequest)
		return
	}

	ids, ok := api.saveUploadedImages(w, r, "images", room, "uploadPostImagesHandler", sID)
	if !ok {
		return
	}

	updated, err := api.db.AddPostImages(r.Context(), post.ID, ids, maxPostImages)
	if err != nil {
		api.discardImages(r, ids, "uploadPostImagesHandler", sID)
		api.storageError(w, err, "uploadPostImagesHandler", sID)
		return
	}

	writeJSON(w, http.StatusOK, newPostResponse(updated), "uploadPostImagesHandler", sID)
}

// postCommentsHandler serves the comment forest of the post named in the path.
func (api *API) postCommentsHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))
	api.serveCommentTree(w, r, pathID(r), "postCommentsHandler", sID)
}

// ownedPost loads the post from the path and checks that user may change it. Staff may act on any
// post when allowStaff is set.
func (api *API) ownedPost(w http.ResponseWriter, r *http.Request, user models.User, allowStaff bool, handler, sID string) (models.Post, bool) {
	post, err := api.db.Post(r.Context(), pathID(r))
	if err != nil {
		api.storageError(w, err, handler, sID)
		return models.Post{}, false
	}

	if post.Author != user.ID && !(allowStaff && user.Role.Staff()) {
		httpError(w, "Not allowed to modify this post", http.StatusForbidden)
		log.Debugf("[%s][%s] user %v is not allowed to modify post %v", handler, sID, user.ID, post.ID)
		return models.Post{}, false
	}

	return post, true
}

func normalizeTopics(topics []string) []string {
	if topics == nil {
		return nil
	}

	seen := make(map[string]bool, len(topics))
	res := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		res = append(res, t)
	}
	return res
}
