package http

import (
	"context"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat/internal/config"
	"github.com/vovakirdan/streamchat/internal/core"
	"github.com/vovakirdan/streamchat/internal/store"
	"github.com/vovakirdan/streamchat/internal/store/fsstore"
)

// FileLister lists the artifacts present on disk.
type FileLister interface {
	List() ([]fsstore.FileInfo, error)
}

// ArtifactLister reads artifact metadata.
type ArtifactLister interface {
	GetArtifact(ctx context.Context, name string) (*store.Artifact, error)
	ListArtifacts(ctx context.Context) ([]*store.Artifact, error)
}

// Deps are the collaborators the HTTP surface reads from. Only Hub is required.
type Deps struct {
	Hub       *core.Hub
	Journal   store.JournalStore
	Artifacts ArtifactLister
	Files     FileLister
}

// NewServer builds the admin API and WebSocket transport.
func NewServer(deps Deps, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	api := NewAPIHandlers(deps, logger)

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(deps.Hub, logger)))

	group := router.Group("/api")
	group.GET("/users", api.ListUsers)
	group.GET("/logs", api.ListLogs)
	group.GET("/files", api.ListFiles)
	group.GET("/files/:name", api.GetFile)

	return &stdhttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
