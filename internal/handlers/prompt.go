package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/confide-ai/confide-backend/internal/logger"
	"github.com/confide-ai/confide-backend/internal/services"
	"github.com/confide-ai/confide-backend/internal/types"
)

type PromptHandler struct {
	log     *logger.Logger
	prompts services.PromptCatalog
}

func NewPromptHandler(log *logger.Logger, prompts services.PromptCatalog) *PromptHandler {
	return &PromptHandler{
		log:     log.With("handler", "PromptHandler"),
		prompts: prompts,
	}
}

// List returns the catalog without template bodies; clients pick prompts by
// name and group, the content stays server-side.
func (ph *PromptHandler) List(c *gin.Context) {
	prompts := ph.prompts.List()
	out := make([]types.Prompt, 0, len(prompts))
	for _, prompt := range prompts {
		out = append(out, prompt.WithoutContent())
	}
	c.JSON(http.StatusOK, types.PromptList{Prompts: out})
}
