// ABOUTME: JSON API handlers under /api/v1
// ABOUTME: Errors map to HTTP status codes the same way gRPC errors map to codes

package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nainya/pagefinder/pkg/textstore"
)

// RegisterRoutes mounts the API on group.
func RegisterRoutes(group *gin.RouterGroup, srv *Server) {
	h := &handlers{srv: srv}
	group.GET("/documents", h.listDocuments)
	group.GET("/documents/:id/tables", h.searchDocument)
	group.GET("/tables", h.listTables)
	group.GET("/tables/search", h.searchAll)
	group.GET("/stats", h.stats)
}

type handlers struct {
	srv *Server
}

func (h *handlers) listDocuments(c *gin.Context) {
	docs, err := h.srv.ListDocuments(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
}

func (h *handlers) searchDocument(c *gin.Context) {
	minConf, ok := queryConfidence(c)
	if !ok {
		return
	}
	results, err := h.srv.SearchDocument(c.Request.Context(), c.Param("id"), minConf)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"doc_id": c.Param("id"), "results": results})
}

type tableInfo struct {
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Strategy      string   `json:"strategy"`
	MinElements   int      `json:"min_elements"`
	MinPercentage float64  `json:"min_percentage"`
	MinScore      float64  `json:"min_score"`
	Elements      []string `json:"elements"`
}

func (h *handlers) listTables(c *gin.Context) {
	defs := h.srv.engine.Definitions()
	out := make([]tableInfo, 0, len(defs))
	for _, d := range defs {
		info := tableInfo{
			Name:          d.Name(),
			Description:   d.Description(),
			Strategy:      string(d.Strategy()),
			MinElements:   d.MinElements(),
			MinPercentage: d.MinPercentage(),
			MinScore:      d.MinScore(),
		}
		for _, e := range d.Elements() {
			info.Elements = append(info.Elements, e.SearchText)
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"tables": out})
}

func (h *handlers) searchAll(c *gin.Context) {
	minConf, ok := queryConfidence(c)
	if !ok {
		return
	}
	var docIDs []string
	for _, raw := range c.QueryArray("doc_id") {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				docIDs = append(docIDs, id)
			}
		}
	}
	report, err := h.srv.SearchAll(c.Request.Context(), docIDs, minConf)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handlers) stats(c *gin.Context) {
	report, err := h.srv.Stats(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func queryConfidence(c *gin.Context) (*float64, bool) {
	raw, ok := c.GetQuery("min_confidence")
	if !ok {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || !validConfidence(v) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "min_confidence must be a number in [0, 1]"})
		return nil, false
	}
	return &v, true
}

func abortWithError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		code = http.StatusNotFound
	case errors.Is(err, textstore.ErrInvalidDocID), errors.Is(err, textstore.ErrInvalidPage):
		code = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		code = 499
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
