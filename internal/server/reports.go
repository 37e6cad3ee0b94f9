package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/apilog/internal/report"
	"github.com/mohammad-safakhou/apilog/models"
)

type ReportsHandler struct {
	Service *report.Service
}

func (h *ReportsHandler) Register(g *echo.Group) {
	g.POST("/generate", h.generate)
	g.GET("/aggregate", h.aggregate)
}

// generateRequest accepts the window under either "time_window" or "time".
type generateRequest struct {
	TimeWindow *models.TimeWindow `json:"time_window"`
	Time       *models.TimeWindow `json:"time"`
	Prompt     string             `json:"prompt"`
	Language   string             `json:"language"`
	Audience   string             `json:"audience"`
	WordLimit  int                `json:"word_limit"`
}

func (r generateRequest) toRequest() report.Request {
	out := report.Request{
		Prompt:    r.Prompt,
		Language:  r.Language,
		Audience:  r.Audience,
		WordLimit: r.WordLimit,
	}
	switch {
	case r.TimeWindow != nil:
		out.Window = *r.TimeWindow
	case r.Time != nil:
		out.Window = *r.Time
	}
	return out
}

// generate always answers 200 with a report document; a collection failure
// shows up as meta.mode "error".
func (h *ReportsHandler) generate(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	doc := h.Service.Generate(c.Request().Context(), req.toRequest())
	return c.JSON(http.StatusOK, doc)
}

func (h *ReportsHandler) aggregate(c echo.Context) error {
	w := models.TimeWindow{
		From:   c.QueryParam("from"),
		To:     c.QueryParam("to"),
		Bucket: c.QueryParam("bucket"),
		SiteID: c.QueryParam("site_id"),
	}
	b, err := h.Service.Aggregate(c.Request().Context(), w)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, b)
}
