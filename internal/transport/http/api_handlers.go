package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat/internal/store"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

// APIHandlers provides read-only HTTP handlers over the live server state.
type APIHandlers struct {
	deps Deps
	log  *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(deps Deps, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		deps: deps,
		log:  logger,
	}
}

// ListUsers returns the current roster.
// GET /api/users
func (h *APIHandlers) ListUsers(c *gin.Context) {
	names := h.deps.Hub.Registry().Snapshot()
	c.JSON(http.StatusOK, UsersResponse{Count: len(names), Users: names})
}

// ListLogs returns the newest journal lines. ?source=store reads the durable
// copy, which survives restarts.
// GET /api/logs?limit=N&source=memory|store
func (h *APIHandlers) ListLogs(c *gin.Context) {
	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxLogLimit)
	}

	switch c.DefaultQuery("source", "memory") {
	case "memory":
		entries := h.deps.Hub.Journal().Entries()
		if len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}
		c.JSON(http.StatusOK, LogsResponse{Source: "memory", Entries: entriesFromJournal(entries)})
	case "store":
		if h.deps.Journal == nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "journal store not configured"})
			return
		}
		entries, err := h.deps.Journal.ListEntries(c.Request.Context(), limit)
		if err != nil {
			h.log.Error().Err(err).Msg("failed to list journal entries")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		c.JSON(http.StatusOK, LogsResponse{Source: "store", Entries: entriesFromStore(entries)})
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "source must be memory or store"})
	}
}

// ListFiles lists uploaded artifacts, preferring indexed metadata over a
// directory listing.
// GET /api/files
func (h *APIHandlers) ListFiles(c *gin.Context) {
	switch {
	case h.deps.Artifacts != nil:
		artifacts, err := h.deps.Artifacts.ListArtifacts(c.Request.Context())
		if err != nil {
			h.log.Error().Err(err).Msg("failed to list artifacts")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		c.JSON(http.StatusOK, filesFromArtifacts(artifacts))
	case h.deps.Files != nil:
		files, err := h.deps.Files.List()
		if err != nil {
			h.log.Error().Err(err).Msg("failed to list storage dir")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		c.JSON(http.StatusOK, filesFromDisk(files))
	default:
		c.JSON(http.StatusOK, []FileResponse{})
	}
}

// GetFile returns metadata for one artifact.
// GET /api/files/:name
func (h *APIHandlers) GetFile(c *gin.Context) {
	if h.deps.Artifacts == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "artifact index not configured"})
		return
	}

	name := c.Param("name")
	artifact, err := h.deps.Artifacts.GetArtifact(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "artifact not found"})
			return
		}
		h.log.Error().Err(err).Str("name", name).Msg("failed to get artifact")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, fileFromArtifact(artifact))
}
