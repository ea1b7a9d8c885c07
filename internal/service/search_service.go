package service

import (
	"context"
	"strings"

	"chirp/internal/identity"
	"chirp/internal/models"
	"chirp/internal/repository"
)

// SearchResult holds one page of users and one page of posts.
type SearchResult struct {
	Users models.Page[models.User]      `json:"users"`
	Posts models.Page[*models.PostView] `json:"posts"`
}

type SearchInput struct {
	Query      string
	ViewerID   string
	UserCursor string
	PostCursor string
	Limit      int
}

type SearchPostsInput struct {
	Query    string
	Hashtag  string
	Author   string
	ViewerID string
	Cursor   string
	Limit    int
}

type SearchService struct {
	users identity.Store
	posts *PostService
	repo  repository.PostRepository
	// userSearch gates the identity-store regex lookup.
	userSearch func(viewerID string) bool
}

func NewSearchService(users identity.Store, repo repository.PostRepository, posts *PostService, userSearch func(viewerID string) bool) *SearchService {
	if userSearch == nil {
		userSearch = func(string) bool { return true }
	}
	return &SearchService{users: users, posts: posts, repo: repo, userSearch: userSearch}
}

// Search matches users by name and public posts by content.
func (s *SearchService) Search(ctx context.Context, in SearchInput) (*SearchResult, error) {
	q := strings.TrimSpace(in.Query)
	if q == "" {
		return nil, models.NewValidationError("Search query is required")
	}
	limit := repository.ClampLimit(in.Limit, repository.DefaultPageSize, repository.MaxPageSize)

	out := &SearchResult{Users: models.Page[models.User]{Items: []models.User{}}}
	if s.userSearch(in.ViewerID) {
		users, err := s.SearchUsers(ctx, q, in.UserCursor, limit)
		if err != nil {
			return nil, err
		}
		out.Users = users
	}

	posts, err := s.SearchPosts(ctx, SearchPostsInput{Query: q, ViewerID: in.ViewerID, Cursor: in.PostCursor, Limit: limit})
	if err != nil {
		return nil, err
	}
	out.Posts = posts
	return out, nil
}

// SearchUsers pages through users whose username or display name matches q.
// The cursor is the last ObjectID of the previous page.
func (s *SearchService) SearchUsers(ctx context.Context, q, cursor string, limit int) (models.Page[models.User], error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return models.Page[models.User]{}, models.NewValidationError("Search query is required")
	}
	limit = repository.ClampLimit(limit, repository.DefaultPageSize, repository.MaxPageSize)

	users, err := s.users.Search(ctx, q, cursor, limit+1)
	if err != nil {
		return models.Page[models.User]{}, appError(err)
	}
	page := models.Page[models.User]{Items: users}
	if len(users) > limit {
		page.Items = users[:limit]
		page.HasMore = true
		page.NextCursor = page.Items[limit-1].HexID()
	}
	if page.Items == nil {
		page.Items = []models.User{}
	}
	return page, nil
}

// SearchPosts filters public posts by text, hashtag and author. At least one
// filter is required.
func (s *SearchService) SearchPosts(ctx context.Context, in SearchPostsInput) (models.Page[*models.PostView], error) {
	f := repository.PostSearch{
		Query:    strings.TrimSpace(in.Query),
		Hashtag:  strings.TrimSpace(in.Hashtag),
		AuthorID: strings.TrimSpace(in.Author),
	}
	if f.Query == "" && f.Hashtag == "" && f.AuthorID == "" {
		return models.Page[*models.PostView]{}, models.NewValidationError("Search query is required")
	}
	page, err := s.repo.Search(ctx, f, in.Cursor, in.Limit)
	if err != nil {
		return models.Page[*models.PostView]{}, appError(err)
	}
	return s.posts.viewPage(ctx, in.ViewerID, page)
}
