package api

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/batch"
	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/server"
)

// itemResponse is an item as returned by the API.
type itemResponse struct {
	batch.Item
	SegmentCount int `json:"segments"`
	AudioBytes   int `json:"audioBytes"`
}

func toResponse(it batch.Item) itemResponse {
	return itemResponse{Item: it, SegmentCount: len(it.Segments), AudioBytes: it.AudioBytes()}
}

func respondItem(c *gin.Context, m *batch.Manager, id string) {
	it, err := m.Item(id)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, toResponse(it))
}

// itemRoutes serves per-item operations. id resolves the target item.
type itemRoutes struct {
	m  *batch.Manager
	id func(*gin.Context) string
}

func (r itemRoutes) register(g *gin.RouterGroup) {
	g.GET("", r.get)
	g.POST("/capture/:action", r.capture)
	g.POST("/upload", r.upload)
	g.POST("/transcribe", r.transcribe)
	g.POST("/retry", r.retry)
	g.PUT("/pending-model", r.selectModel)
	g.POST("/reprocess", r.reprocess)
	g.POST("/turns", r.sendTurn)
	g.GET("/audio", r.download)
}

func (r itemRoutes) get(c *gin.Context) {
	respondItem(c, r.m, r.id(c))
}

func (r itemRoutes) capture(c *gin.Context) {
	ctx, id := c.Request.Context(), r.id(c)
	var err error
	switch c.Param("action") {
	case "start":
		err = r.m.StartCapture(ctx, id)
	case "pause":
		err = r.m.PauseCapture(ctx, id)
	case "resume":
		err = r.m.ResumeCapture(ctx, id)
	case "stop":
		err = r.m.StopCapture(ctx, id)
	default:
		err = errors.NotFound("capture action", c.Param("action"))
	}
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	respondItem(c, r.m, id)
}

func (r itemRoutes) upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		server.RespondWithError(c, errors.MissingField("file"))
		return
	}
	data, mimeType, err := readPart(fh)
	if err != nil {
		server.RespondWithError(c, errors.InvalidInput("file", err.Error()))
		return
	}
	id := r.id(c)
	if err := r.m.Upload(id, data, mimeType); err != nil {
		server.RespondWithError(c, err)
		return
	}
	respondItem(c, r.m, id)
}

func (r itemRoutes) transcribe(c *gin.Context) {
	id := r.id(c)
	if err := r.m.Transcribe(c.Request.Context(), id); err != nil {
		server.RespondWithError(c, err)
		return
	}
	r.accepted(c, id)
}

func (r itemRoutes) retry(c *gin.Context) {
	id := r.id(c)
	if err := r.m.Retry(c.Request.Context(), id); err != nil {
		server.RespondWithError(c, err)
		return
	}
	r.accepted(c, id)
}

func (r itemRoutes) selectModel(c *gin.Context) {
	var req modelRequest
	if !bind(c, &req) {
		return
	}
	id := r.id(c)
	if err := r.m.SelectModel(id, req.Model); err != nil {
		server.RespondWithError(c, err)
		return
	}
	respondItem(c, r.m, id)
}

func (r itemRoutes) reprocess(c *gin.Context) {
	id := r.id(c)
	started, err := r.m.Reprocess(c.Request.Context(), id)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	if !started {
		respondItem(c, r.m, id)
		return
	}
	r.accepted(c, id)
}

type turnRequest struct {
	Text string `json:"text" form:"text"`
}

type turnResponse struct {
	Sent bool         `json:"sent"`
	Item itemResponse `json:"item"`
}

// sendTurn accepts JSON {"text"} or a multipart form with "text" and an
// optional "audio" file. It returns once the reply, or the error turn, has
// been appended.
func (r itemRoutes) sendTurn(c *gin.Context) {
	var req turnRequest
	var clip *audio.Segment

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&req); err != nil {
			server.RespondWithError(c, errors.Validation(err.Error()))
			return
		}
		if fh, err := c.FormFile("audio"); err == nil {
			data, mimeType, err := readPart(fh)
			if err != nil {
				server.RespondWithError(c, errors.InvalidInput("audio", err.Error()))
				return
			}
			if mimeType == "" {
				mimeType = audio.DefaultMIMEType
			}
			clip = &audio.Segment{Data: data, MIMEType: mimeType}
		}
	} else if !bind(c, &req) {
		return
	}

	id := r.id(c)
	sent, err := r.m.SendTurn(c.Request.Context(), id, req.Text, clip)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	it, err := r.m.Item(id)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, turnResponse{Sent: sent, Item: toResponse(it)})
}

func (r itemRoutes) download(c *gin.Context) {
	d, err := r.m.MergedAudio(r.id(c))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.FileName}))
	c.Data(http.StatusOK, d.MIMEType, d.Data)
}

func (r itemRoutes) accepted(c *gin.Context, id string) {
	it, err := r.m.Item(id)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondAccepted(c, toResponse(it))
}

// readPart reads an uploaded file. The declared type is kept only when it
// names an audio format; otherwise "" is returned so the content is sniffed.
func readPart(fh *multipart.FileHeader) ([]byte, string, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}
	mimeType := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "audio/") {
		mimeType = ""
	}
	return data, mimeType, nil
}
