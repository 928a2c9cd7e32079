package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/humancuration/cpc-core/internal/errors"
	"github.com/humancuration/cpc-core/internal/facade"
	"github.com/humancuration/cpc-core/internal/media"
)

// facadeOp is one JSON-in/JSON-out core operation.
type facadeOp func(ctx context.Context, request []byte) []byte

// addRoutes registers the REST surface. Every /api/v1 handler delegates to
// the facade and maps its error codes onto HTTP status.
func addRoutes(r *gin.Engine, core *facade.Facade, thumbnails *media.Queue) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "cpc-core"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	api.POST("/users", forwardBody(core.CreateUser, http.StatusCreated))
	api.GET("/users/:id", forwardDoc(core.GetUser, func(c *gin.Context) gin.H {
		return gin.H{"user_id": c.Param("id")}
	}))

	api.POST("/posts", forwardBody(core.CreatePost, http.StatusCreated))
	api.GET("/posts/:id", forwardDoc(core.GetPost, func(c *gin.Context) gin.H {
		return gin.H{"post_id": c.Param("id")}
	}))

	api.GET("/users/:id/timeline", forwardDoc(core.GetTimeline, func(c *gin.Context) gin.H {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		includeSelf := c.Query("include_self") == "true"
		return gin.H{
			"user_id":      c.Param("id"),
			"limit":        limit,
			"offset":       offset,
			"include_self": includeSelf,
		}
	}))

	api.POST("/relationships", forwardBody(core.CreateRelationship, http.StatusCreated))
	api.DELETE("/relationships", forwardBody(core.DeleteRelationship, http.StatusOK))

	api.GET("/users/:id/followers", forwardDoc(core.GetFollowers, func(c *gin.Context) gin.H {
		return gin.H{"user_id": c.Param("id")}
	}))
	api.GET("/users/:id/following", forwardDoc(core.GetFollowing, func(c *gin.Context) gin.H {
		return gin.H{"user_id": c.Param("id")}
	}))

	api.POST("/thumbnails", generateThumbnail(thumbnails))
}

// forwardBody passes the raw request body through the facade operation.
func forwardBody(op facadeOp, successStatus int) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
				"code":    string(apperrors.ErrSerialization),
				"message": "failed to read request body",
			}})
			return
		}
		respond(c, op(c.Request.Context(), body), successStatus)
	}
}

// forwardDoc builds the request document from path and query parameters.
func forwardDoc(op facadeOp, build func(c *gin.Context) gin.H) gin.HandlerFunc {
	return func(c *gin.Context) {
		request, err := json.Marshal(build(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{
				"code":    string(apperrors.ErrInternal),
				"message": "failed to build request",
			}})
			return
		}
		respond(c, op(c.Request.Context(), request), http.StatusOK)
	}
}

// respond writes the facade's document verbatim under the mapped status.
func respond(c *gin.Context, response []byte, successStatus int) {
	status := successStatus
	if doc, failed := facade.ErrorOf(response); failed {
		status = statusFor(doc.Code)
	}
	c.Data(status, "application/json", response)
}

// statusFor maps core error codes onto HTTP status.
func statusFor(code string) int {
	switch apperrors.ErrorCode(code) {
	case apperrors.ErrNotFound, apperrors.ErrUnknownUser:
		return http.StatusNotFound
	case apperrors.ErrDuplicateEdge:
		return http.StatusConflict
	case apperrors.ErrSelfFollow, apperrors.ErrEmptyBody,
		apperrors.ErrInvalidPagination, apperrors.ErrInvalid,
		apperrors.ErrSerialization:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// generateThumbnail renders a thumbnail file-to-file. With "async" set the
// job is queued and a job id returned instead.
func generateThumbnail(q *media.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			SourcePath string `json:"source_path"`
			OutputPath string `json:"output_path"`
			Size       int    `json:"size"`
			Async      bool   `json:"async"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
				"code":    string(apperrors.ErrSerialization),
				"message": "malformed request document",
			}})
			return
		}

		if req.Async {
			jobID, err := q.Enqueue(req.SourcePath, req.OutputPath, req.Size, nil)
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{
					"code":    string(apperrors.ErrInternal),
					"message": err.Error(),
				}})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
			return
		}

		if err := q.GenerateSync(c.Request.Context(), req.SourcePath, req.OutputPath, req.Size); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
				"code":    string(apperrors.ErrInvalid),
				"message": err.Error(),
			}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "output_path": req.OutputPath})
	}
}
