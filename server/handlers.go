package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/songzhibin97/mediaflow/codec"
	"github.com/songzhibin97/mediaflow/graph"
	"github.com/songzhibin97/mediaflow/storage"
	"github.com/songzhibin97/mediaflow/types"
	"github.com/songzhibin97/mediaflow/workflow"
)

var errTemplateNotFound = errors.New("template not found")

// graphRequest carries a workflow inline or by template id.
type graphRequest struct {
	Name       string       `json:"name"`
	TemplateID string       `json:"templateId,omitempty"`
	Nodes      []types.Node `json:"nodes"`
	Edges      []types.Edge `json:"edges"`
}

// resolve returns the graph to act on and its display name.
func (s *Server) resolve(req graphRequest) (types.WorkflowGraph, string, error) {
	if req.TemplateID == "" {
		return types.WorkflowGraph{Nodes: req.Nodes, Edges: req.Edges}, req.Name, nil
	}
	tpl, ok := s.templates.GetTemplate(req.TemplateID)
	if !ok {
		return types.WorkflowGraph{}, "", errTemplateNotFound
	}
	name := req.Name
	if name == "" {
		name = tpl.Name
	}
	return tpl.Graph(), name, nil
}

type workflowResponse struct {
	Name  string       `json:"name,omitempty"`
	Nodes []types.Node `json:"nodes"`
	Edges []types.Edge `json:"edges"`
}

type shareResponse struct {
	ID    string `json:"id"`
	Token string `json:"token"`
	URL   string `json:"url"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleOpenLink decodes a share token back into editor state.
func (s *Server) handleOpenLink(c *gin.Context) {
	token := c.Query("w")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing w parameter"})
		return
	}
	p, err := codec.Decode(token)
	if err != nil {
		s.logger.Debug("invalid share token", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or corrupt workflow link"})
		return
	}
	c.JSON(http.StatusOK, workflowResponse{Name: p.Name, Nodes: p.Nodes, Edges: p.Edges})
}

func (s *Server) handleShare(c *gin.Context) {
	var req graphRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, name, err := s.resolve(req)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err := graph.Validate(g); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	token, err := codec.Encode(g.Nodes, g.Edges, name)
	if errors.Is(err, codec.ErrUnencodable) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("failed to encode workflow", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode workflow"})
		return
	}
	id, err := s.ids.NextID()
	if err != nil {
		s.logger.Error("failed to generate share id", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate id"})
		return
	}
	sw := types.SharedWorkflow{ID: id, Name: name, Token: token, CreatedAt: time.Now().UnixMilli()}
	if err := s.store.SaveShared(c.Request.Context(), sw); err != nil {
		s.logger.Error("failed to save share link", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save share link"})
		return
	}
	if s.metrics != nil {
		s.metrics.ShareCreated()
	}

	c.JSON(http.StatusCreated, shareResponse{
		ID:    strconv.FormatUint(id, 10),
		Token: token,
		URL:   s.baseURL + codec.LinkPath(token),
	})
}

// handleGetShared redirects a short share id to its full link.
func (s *Server) handleGetShared(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid share id"})
		return
	}
	sw, err := s.store.GetShared(c.Request.Context(), id)
	if errors.Is(err, storage.ErrSharedNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "share link not found"})
		return
	} else if err != nil {
		s.logger.Error("failed to load share link", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load share link"})
		return
	}
	c.Redirect(http.StatusFound, codec.LinkPath(sw.Token))
}

func (s *Server) handleListTemplates(c *gin.Context) {
	category := c.Query("category")
	filter := c.Query("filter")
	if filter == "" {
		c.JSON(http.StatusOK, gin.H{"templates": s.templates.ListTemplates(category)})
		return
	}

	matched, err := s.templates.Filter(filter)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if category != "" {
		kept := matched[:0]
		for _, t := range matched {
			if t.Category == category {
				kept = append(kept, t)
			}
		}
		matched = kept
	}
	c.JSON(http.StatusOK, gin.H{"templates": matched})
}

func (s *Server) handleGetTemplate(c *gin.Context) {
	tpl, ok := s.templates.GetTemplate(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errTemplateNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// handleRun executes a workflow to completion and returns its record.
func (s *Server) handleRun(c *gin.Context) {
	var req graphRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, name, err := s.resolve(req)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	rec, err := s.execute(c.Request.Context(), g, name, workflow.Callbacks{})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleGetRun(c *gin.Context) {
	rec, err := s.store.GetRun(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	} else if err != nil {
		s.logger.Error("failed to load run", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// execute runs g under the configured run timeout and persists the record.
// Only structural errors are returned; a cancelled run still yields a record.
func (s *Server) execute(ctx context.Context, g types.WorkflowGraph, name string, cb workflow.Callbacks) (types.RunRecord, error) {
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	run, err := s.engine.ExecuteWorkflow(ctx, g, cb)
	if run == nil {
		return types.RunRecord{}, err
	}
	rec := run.Record(name, err)

	// Saved even when the request context is already done.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if serr := s.store.SaveRun(saveCtx, rec); serr != nil {
		s.logger.Error("failed to save run", zap.String("run_id", rec.ID), zap.Error(serr))
	}
	return rec, nil
}
