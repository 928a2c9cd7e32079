// Package facade exposes the social core as a JSON-in/JSON-out operation
// surface. Platform bridges and transports hand each operation one encoded
// request document and always get a well-formed response document back,
// success or error. Nothing escapes as a panic.
package facade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/humancuration/cpc-core/internal/errors"
	"github.com/humancuration/cpc-core/internal/logging"
	"github.com/humancuration/cpc-core/internal/metrics"
	"github.com/humancuration/cpc-core/internal/models"
	"github.com/humancuration/cpc-core/internal/social"
	"github.com/humancuration/cpc-core/internal/timeline"
)

// Facade wraps the social service behind the serialization boundary.
type Facade struct {
	service *social.Service
}

// New creates a Facade over the given service.
func New(service *social.Service) *Facade {
	return &Facade{service: service}
}

// ===== Request documents =====

type createUserRequest struct {
	ID string `json:"id"`
}

type userRequest struct {
	UserID string `json:"user_id"`
}

type createPostRequest struct {
	AuthorID string `json:"author_id"`
	Body     string `json:"body"`
}

type getPostRequest struct {
	PostID string `json:"post_id"`
}

type timelineRequest struct {
	UserID      string `json:"user_id"`
	Limit       int    `json:"limit"`
	Offset      int    `json:"offset"`
	IncludeSelf bool   `json:"include_self"`
}

type relationshipRequest struct {
	FollowerID string `json:"follower_id"`
	FollowedID string `json:"followed_id"`
}

// ===== Response documents =====

type userResponse struct {
	User *models.User `json:"user"`
}

type postResponse struct {
	Post *models.Post `json:"post"`
}

type timelineResponse struct {
	Entries []models.TimelineEntry `json:"entries"`
}

type relationshipResponse struct {
	Relationship *models.Follow `json:"relationship"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type userIDsResponse struct {
	UserIDs []models.UUID `json:"user_ids"`
}

// ErrorDocument is the error payload carried in failure responses.
type ErrorDocument struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error ErrorDocument `json:"error"`
}

// ErrorOf extracts the error document from an encoded response. The second
// return is false for success responses.
func ErrorOf(response []byte) (ErrorDocument, bool) {
	var doc struct {
		Error *ErrorDocument `json:"error"`
	}
	if err := json.Unmarshal(response, &doc); err != nil || doc.Error == nil || doc.Error.Code == "" {
		return ErrorDocument{}, false
	}
	return *doc.Error, true
}

// ===== Operations =====

// CreateUser registers a user. An absent or empty id requests a
// server-generated identifier.
func (f *Facade) CreateUser(ctx context.Context, request []byte) []byte {
	return f.invoke(ctx, "create_user", func(ctx context.Context) (interface{}, error) {
		var req createUserRequest
		if err := decodeRequest(request, &req); err != nil {
			return nil, err
		}
		user, err := f.service.CreateUser(ctx, models.UUID(req.ID))
		if err != nil {
			return nil, err
		}
		return userResponse{User: user}, nil
	})
}

// GetUser looks up a user by id.
func (f *Facade) GetUser(ctx context.Context, request []byte) []byte {
	return f.invoke(ctx, "get_user", func(ctx context.Context) (interface{}, error) {
		var req userRequest
		if err := decodeRequest(request, &req); err != nil {
			return nil, err
		}
		if req.UserID == "" {
			return nil, apperrors.New(apperrors.ErrInvalid, "user_id is required")
		}
		user, err := f.service.GetUser(ctx, models.UUID(req.UserID))
		if err != nil {
			return nil, err
		}
		return userResponse{User: user}, nil
	})
}

// CreatePost stores a new post for the given author.
func (f *Facade) CreatePost(ctx context.Context, request []byte) []byte {
	return f.invoke(ctx, "create_post", func(ctx context.Context) (interface{}, error) {
		var req createPostRequest
		if err := decodeRequest(request, &req); err != nil {
			return nil, err
		}
		if req.AuthorID == "" {
			return nil, apperrors.New(apperrors.ErrInvalid, "author_id is required")
		}
		post, err := f.service.CreatePost(ctx, models.UUID(req.AuthorID), req.Body)
		if err != nil {
			return nil, err
		}
		return postResponse{Post: post}, nil
	})
}

// GetPost looks up a post by id.
func (f *Facade) GetPost(ctx context.Context, request []byte) []byte {
	return f.invoke(ctx, "get_post", func(ctx context.Context) (interface{}, error) {
		var req getPostRequest
		if err := decodeRequest(request, &req); err != nil {
			return nil, err
		}
		if req.PostID == "" {
			return nil, apperrors.New(apperrors.ErrInvalid, "post_id is required")
		}
		post, err := f.service.GetPost(ctx, models.UUID(req.PostID))
		if err != nil {
			return nil, err
		}
		return postResponse{Post: post}, nil
	})
}

// GetTimeline assembles the requesting user's home feed page.
func (f *Facade) GetTimeline(ctx context.Context, request []byte) []byte {
	return f.invoke(ctx, "get_timeline", func(ctx context.Context) (interface{}, error) {
		var req timelineRequest
		if err := decodeRequest(request, &req); err != nil {
			return nil, err
		}
		if req.UserID == "" {
			return nil, apperrors.New(apperrors.ErrInvalid, "user_id is required")
		}
		entries, err := f.service.Timeline(ctx, models.UUID(req.UserID), timeline.Options{
			Limit:       req.Limit,
			Offset:      req.Offset,
			IncludeSelf: req.IncludeSelf,
		})
		if err != nil {
			return nil, err
		}
		return timelineResponse{Entries: entries}, nil
	})
}

// CreateRelationship adds a follow edge.
func (f *Facade) CreateRelationship(ctx context.Context, request []byte) []byte {
	return f.invoke(ctx, "create_relationship", func(ctx context.Context) (interface{}, error) {
		req, err := decodeRelationship(request)
		if err != nil {
			return nil, err
		}
		follow, err := f.service.Follow(ctx, models.UUID(req.FollowerID), models.UUID(req.FollowedID))
		if err != nil {
			return nil, err
		}
		return relationshipResponse{Relationship: follow}, nil
	})
}

// DeleteRelationship removes a follow edge.
func (f *Facade) DeleteRelationship(ctx context.Context, request []byte) []byte {
	return f.invoke(ctx, "delete_relationship", func(ctx context.Context) (interface{}, error) {
		req, err := decodeRelationship(request)
		if err != nil {
			return nil, err
		}
		if err := f.service.Unfollow(ctx, models.UUID(req.FollowerID), models.UUID(req.FollowedID)); err != nil {
			return nil, err
		}
		return statusResponse{Status: "removed"}, nil
	})
}

// GetFollowers lists who follows the given user, most recent first.
func (f *Facade) GetFollowers(ctx context.Context, request []byte) []byte {
	return f.invoke(ctx, "get_followers", func(ctx context.Context) (interface{}, error) {
		return f.edgeList(ctx, request, f.service.Followers)
	})
}

// GetFollowing lists who the given user follows, most recent first.
func (f *Facade) GetFollowing(ctx context.Context, request []byte) []byte {
	return f.invoke(ctx, "get_following", func(ctx context.Context) (interface{}, error) {
		return f.edgeList(ctx, request, f.service.Following)
	})
}

func (f *Facade) edgeList(ctx context.Context, request []byte, list func(context.Context, models.UUID) ([]models.UUID, error)) (interface{}, error) {
	var req userRequest
	if err := decodeRequest(request, &req); err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, apperrors.New(apperrors.ErrInvalid, "user_id is required")
	}
	ids, err := list(ctx, models.UUID(req.UserID))
	if err != nil {
		return nil, err
	}
	return userIDsResponse{UserIDs: ids}, nil
}

// ===== Boundary plumbing =====

// invoke runs one operation, converting any failure into an error document.
// A recovered panic reports INTERNAL_STORE_ERROR rather than crossing the
// boundary.
func (f *Facade) invoke(ctx context.Context, op string, fn func(ctx context.Context) (interface{}, error)) (out []byte) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Operation panicked", fmt.Errorf("%v", r), map[string]interface{}{
				"op": op,
			})
			metrics.Observe(op, string(apperrors.ErrInternal), start)
			out = encodeError(apperrors.ErrInternal, "internal error")
		}
	}()

	payload, err := fn(ctx)
	if err != nil {
		code, message := boundaryError(err)
		metrics.Observe(op, string(code), start)
		return encodeError(code, message)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to encode response", err, map[string]interface{}{
			"op": op,
		})
		metrics.Observe(op, string(apperrors.ErrSerialization), start)
		return encodeError(apperrors.ErrSerialization, "failed to encode response")
	}
	metrics.Observe(op, "ok", start)
	return data
}

// decodeRequest unmarshals a request document. Malformed input reports
// SERIALIZATION_ERROR.
func decodeRequest(request []byte, into interface{}) error {
	if len(request) == 0 {
		return apperrors.New(apperrors.ErrSerialization, "empty request document")
	}
	if err := json.Unmarshal(request, into); err != nil {
		return apperrors.Wrap(apperrors.ErrSerialization, "malformed request document", err)
	}
	return nil
}

func decodeRelationship(request []byte) (relationshipRequest, error) {
	var req relationshipRequest
	if err := decodeRequest(request, &req); err != nil {
		return req, err
	}
	if req.FollowerID == "" {
		return req, apperrors.New(apperrors.ErrInvalid, "follower_id is required")
	}
	if req.FollowedID == "" {
		return req, apperrors.New(apperrors.ErrInvalid, "followed_id is required")
	}
	return req, nil
}

// boundaryError maps an internal error onto the public taxonomy. Codes
// outside the taxonomy, including raw storage errors, surface as
// INTERNAL_STORE_ERROR with a generic message so driver details stay inside.
func boundaryError(err error) (apperrors.ErrorCode, string) {
	code := apperrors.GetCode(err)
	switch code {
	case apperrors.ErrUnknownUser,
		apperrors.ErrNotFound,
		apperrors.ErrDuplicateEdge,
		apperrors.ErrSelfFollow,
		apperrors.ErrEmptyBody,
		apperrors.ErrInvalidPagination,
		apperrors.ErrSerialization,
		apperrors.ErrInvalid:
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return code, appErr.Message
		}
		return code, err.Error()
	default:
		return apperrors.ErrInternal, "internal store error"
	}
}

func encodeError(code apperrors.ErrorCode, message string) []byte {
	data, err := json.Marshal(errorResponse{Error: ErrorDocument{
		Code:    string(code),
		Message: message,
	}})
	if err != nil {
		// Static fallback; the envelope above cannot normally fail to encode.
		return []byte(`{"error":{"code":"INTERNAL_STORE_ERROR","message":"failed to encode error"}}`)
	}
	return data
}
