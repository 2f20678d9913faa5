package memories

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/voice-engine-studio/memory-service/internal/model"
	registrystore "github.com/voice-engine-studio/memory-service/internal/registry/store"
	"github.com/voice-engine-studio/memory-service/internal/security"
	"github.com/voice-engine-studio/memory-service/internal/service"
)

// Services are the collaborators behind the memory endpoints. Indexer may be nil.
type Services struct {
	Store     registrystore.MemoryStore
	Search    *service.SearchEngine
	Context   *service.ContextAssembler
	Extractor *service.MemoryExtractor
	Indexer   *service.BackgroundIndexer
}

// MountRoutes mounts the long-term memory REST endpoints on the given router.
func MountRoutes(r *gin.Engine, svc Services) {
	g := r.Group("/api/memory/:user_id", security.OwnerMiddleware())

	g.GET("", func(c *gin.Context) { listMemories(c, svc) })
	g.POST("", func(c *gin.Context) { createMemory(c, svc) })
	g.DELETE("/:memory_id", func(c *gin.Context) { deleteMemory(c, svc) })
	g.POST("/search", func(c *gin.Context) { searchMemories(c, svc) })
	g.GET("/context", func(c *gin.Context) { getContext(c, svc) })
	g.POST("/extract", func(c *gin.Context) { extractMemories(c, svc) })
}

func listMemories(c *gin.Context, svc Services) {
	opts := registrystore.ListOptions{}
	if raw := c.Query("category"); raw != "" {
		category, err := model.ParseCategory(raw)
		if err != nil {
			handleError(c, &registrystore.ValidationError{Field: "category", Message: err.Error()})
			return
		}
		opts.Category = &category
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		handleError(c, err)
		return
	}
	opts.Limit = limit

	memories, err := svc.Store.List(c.Request.Context(), security.GetUserID(c), opts)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, memories)
}

type createRequest struct {
	Content  string `json:"content"`
	Category string `json:"category"`
}

func createMemory(c *gin.Context, svc Services) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	category, err := model.ParseCategory(req.Category)
	if err != nil {
		handleError(c, &registrystore.ValidationError{Field: "category", Message: err.Error()})
		return
	}

	mem, err := svc.Store.Create(c.Request.Context(), security.GetUserID(c), req.Content, category)
	if err != nil {
		handleError(c, err)
		return
	}
	svc.Indexer.Notify()
	c.JSON(http.StatusOK, mem)
}

func deleteMemory(c *gin.Context, svc Services) {
	memoryID, err := uuid.Parse(c.Param("memory_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "memory_id must be a UUID"})
		return
	}
	userID := security.GetUserID(c)
	if err := svc.Store.Delete(c.Request.Context(), userID, memoryID); err != nil {
		handleError(c, err)
		return
	}
	svc.Indexer.Forget(c.Request.Context(), userID, memoryID)
	c.JSON(http.StatusOK, gin.H{"message": "Memory deleted successfully"})
}

func searchMemories(c *gin.Context, svc Services) {
	query, ok := c.GetQuery("query")
	if !ok {
		handleError(c, &registrystore.ValidationError{Field: "query", Message: "is required"})
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		handleError(c, err)
		return
	}

	results, err := svc.Search.Search(c.Request.Context(), security.GetUserID(c), query, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func getContext(c *gin.Context, svc Services) {
	text, err := svc.Context.BuildContext(c.Request.Context(), security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"context": text})
}

type extractRequest struct {
	Conversation string `json:"conversation"`
	// Persist defaults to true; false only previews the candidates.
	Persist *bool `json:"persist"`
}

func extractMemories(c *gin.Context, svc Services) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := security.GetUserID(c)

	var (
		result service.ExtractResult
		err    error
	)
	if req.Persist != nil && !*req.Persist {
		result, err = svc.Extractor.Preview(c.Request.Context(), userID, req.Conversation)
	} else {
		result, err = svc.Extractor.ExtractAndStore(c.Request.Context(), userID, req.Conversation)
	}
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// queryInt reads an optional integer query parameter; absent means 0.
func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &registrystore.ValidationError{Field: key, Message: "must be an integer"}
	}
	return v, nil
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": notFound.Resource + " not found"})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	default:
		log.Error("memory route error", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
