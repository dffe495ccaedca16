// Package api exposes the batch and single-item managers over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/scribe/apiclient"
	"github.com/kbukum/scribe/batch"
	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/server"
	"github.com/kbukum/scribe/sse"
)

// Change feed topics.
const (
	TopicBatch  = "batch"
	TopicSingle = "single"
)

// Handler serves the API. Single, client and hub are optional; their routes
// are left out when nil.
type Handler struct {
	batch  *batch.Manager
	single *batch.Single
	client *apiclient.Handle
	hub    *sse.Hub
}

// New creates a handler.
func New(m *batch.Manager, single *batch.Single, client *apiclient.Handle, hub *sse.Hub) *Handler {
	return &Handler{batch: m, single: single, client: client, hub: hub}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	if h.client != nil {
		r.GET("/credential", h.credentialStatus)
		r.PUT("/credential", h.setCredential)
		r.DELETE("/credential", h.clearCredential)
	}

	b := r.Group("/batch")
	b.GET("/items", h.listItems)
	b.POST("/items", h.addItem)
	b.DELETE("/items", h.removeAll)
	b.POST("/process", h.processAll)
	b.GET("/model", modelHandler(h.batch))
	b.PUT("/model", setModelHandler(h.batch))
	b.GET("/transcripts", h.transcripts)
	if h.hub != nil {
		b.GET("/events", h.events(TopicBatch))
	}
	bi := b.Group("/items/:id")
	bi.PATCH("", h.renameItem)
	bi.DELETE("", h.removeItem)
	itemRoutes{m: h.batch, id: func(c *gin.Context) string { return c.Param("id") }}.register(bi)

	if h.single != nil {
		s := r.Group("/single")
		s.POST("/reset", h.resetSingle)
		s.GET("/model", modelHandler(h.single.Manager))
		s.PUT("/model", setModelHandler(h.single.Manager))
		if h.hub != nil {
			s.GET("/events", h.events(TopicSingle))
		}
		itemRoutes{m: h.single.Manager, id: func(*gin.Context) string { return h.single.ID() }}.register(s)
	}
}

// Watch publishes a change event on topic after every change to m.
func Watch(hub *sse.Hub, topic string, m *batch.Manager) (unsubscribe func()) {
	return m.Subscribe(func() {
		data, _ := json.Marshal(m.Summary())
		hub.Publish(topic, sse.Event{Type: sse.EventChanged, Data: data})
	})
}

type credentialRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

func (h *Handler) credentialStatus(c *gin.Context) {
	server.RespondOK(c, gin.H{"initialized": h.client.Initialized()})
}

func (h *Handler) setCredential(c *gin.Context) {
	var req credentialRequest
	if !bind(c, &req) {
		return
	}
	if err := h.client.Init(req.APIKey); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondNoContent(c)
}

func (h *Handler) clearCredential(c *gin.Context) {
	h.client.Clear()
	server.RespondNoContent(c)
}

type listResponse struct {
	Items     []itemResponse `json:"items"`
	Summary   batch.Summary  `json:"summary"`
	Model     string         `json:"model"`
	Recording string         `json:"recording,omitempty"`
}

func (h *Handler) listItems(c *gin.Context) {
	items := h.batch.Items()
	out := make([]itemResponse, len(items))
	for i, it := range items {
		out[i] = toResponse(it)
	}
	server.RespondOK(c, listResponse{
		Items:     out,
		Summary:   h.batch.Summary(),
		Model:     h.batch.Model(),
		Recording: h.batch.Recording(),
	})
}

func (h *Handler) addItem(c *gin.Context) {
	it, err := h.batch.Add()
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondCreated(c, toResponse(it))
}

func (h *Handler) removeAll(c *gin.Context) {
	h.batch.RemoveAll(c.Request.Context())
	server.RespondNoContent(c)
}

func (h *Handler) processAll(c *gin.Context) {
	n := h.batch.ProcessAll(c.Request.Context())
	server.RespondAccepted(c, gin.H{"dispatched": n})
}

func (h *Handler) transcripts(c *gin.Context) {
	c.String(http.StatusOK, h.batch.TranscriptsText())
}

type renameRequest struct {
	Name string `json:"name" binding:"required,max=200"`
}

func (h *Handler) renameItem(c *gin.Context) {
	var req renameRequest
	if !bind(c, &req) {
		return
	}
	id := c.Param("id")
	if err := h.batch.Rename(id, req.Name); err != nil {
		server.RespondWithError(c, err)
		return
	}
	respondItem(c, h.batch, id)
}

func (h *Handler) removeItem(c *gin.Context) {
	if err := h.batch.Remove(c.Request.Context(), c.Param("id")); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondNoContent(c)
}

func (h *Handler) resetSingle(c *gin.Context) {
	server.RespondOK(c, toResponse(h.single.Reset(c.Request.Context())))
}

func (h *Handler) events(topic string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sse.Serve(h.hub, c.Writer, c.Request, topic, sse.DefaultKeepAlive)
	}
}

type modelRequest struct {
	Model string `json:"model" binding:"required"`
}

func modelHandler(m *batch.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		server.RespondOK(c, gin.H{"model": m.Model(), "available": m.Models()})
	}
}

func setModelHandler(m *batch.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req modelRequest
		if !bind(c, &req) {
			return
		}
		if err := m.SetModel(req.Model); err != nil {
			server.RespondWithError(c, err)
			return
		}
		server.RespondOK(c, gin.H{"model": m.Model(), "available": m.Models()})
	}
}

// bind decodes a JSON body, responding with INVALID_INPUT on failure.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		server.RespondWithError(c, errors.Validation(err.Error()))
		return false
	}
	return true
}
