package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/lensnet-go/internal/datastore"
)

func (c *Controller) initCaptureRoutes() {
	g := c.Group.Group("", c.requireDataStore)
	g.GET("/captures", c.ListCaptures)
	g.GET("/captures/:id", c.GetCapture)
	g.GET("/captures/:id/image", c.GetCaptureImage)
	g.DELETE("/captures/:id", c.DeleteCapture)
	g.GET("/sessions", c.ListSessions)
	g.GET("/sessions/:id", c.GetSession)
}

func (c *Controller) requireDataStore(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if c.DS == nil {
			return c.HandleError(ctx, nil, "capture storage is disabled", http.StatusServiceUnavailable)
		}
		return next(ctx)
	}
}

// ListCaptures handles GET /api/v1/captures with optional label, source,
// session, since (RFC 3339), limit and offset query parameters.
func (c *Controller) ListCaptures(ctx echo.Context) error {
	f := datastore.Filter{
		Label:     ctx.QueryParam("label"),
		Source:    ctx.QueryParam("source"),
		SessionID: ctx.QueryParam("session"),
	}
	var err error
	if f.Limit, err = intParam(ctx, "limit"); err != nil {
		return c.HandleError(ctx, err, "invalid limit", http.StatusBadRequest)
	}
	if f.Offset, err = intParam(ctx, "offset"); err != nil || f.Offset < 0 {
		return c.HandleError(ctx, err, "invalid offset", http.StatusBadRequest)
	}
	if v := ctx.QueryParam("since"); v != "" {
		if f.Since, err = time.Parse(time.RFC3339, v); err != nil {
			return c.HandleError(ctx, err, "since must be RFC 3339", http.StatusBadRequest)
		}
	}
	out, err := c.DS.ListCaptures(ctx.Request().Context(), f)
	if err != nil {
		return c.fail(ctx, err, "failed to list captures")
	}
	return ctx.JSON(http.StatusOK, out)
}

func intParam(ctx echo.Context, name string) (int, error) {
	v := ctx.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// GetCapture handles GET /api/v1/captures/:id.
func (c *Controller) GetCapture(ctx echo.Context) error {
	capt, err := c.DS.GetCapture(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.fail(ctx, err, "capture lookup failed")
	}
	return ctx.JSON(http.StatusOK, capt)
}

// GetCaptureImage handles GET /api/v1/captures/:id/image?thumb=true.
func (c *Controller) GetCaptureImage(ctx echo.Context) error {
	capt, err := c.DS.GetCapture(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.fail(ctx, err, "capture lookup failed")
	}
	thumb, _ := strconv.ParseBool(ctx.QueryParam("thumb"))
	data, err := c.DS.ReadImage(capt, thumb)
	if err != nil {
		return c.fail(ctx, err, "failed to read capture image")
	}
	ctx.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=86400")
	return ctx.Blob(http.StatusOK, "image/jpeg", data)
}

// DeleteCapture handles DELETE /api/v1/captures/:id.
func (c *Controller) DeleteCapture(ctx echo.Context) error {
	if err := c.DS.DeleteCapture(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return c.fail(ctx, err, "failed to delete capture")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ListSessions handles GET /api/v1/sessions.
func (c *Controller) ListSessions(ctx echo.Context) error {
	limit, err := intParam(ctx, "limit")
	if err != nil {
		return c.HandleError(ctx, err, "invalid limit", http.StatusBadRequest)
	}
	out, err := c.DS.ListSessions(ctx.Request().Context(), limit)
	if err != nil {
		return c.fail(ctx, err, "failed to list sessions")
	}
	return ctx.JSON(http.StatusOK, out)
}

// GetSession handles GET /api/v1/sessions/:id.
func (c *Controller) GetSession(ctx echo.Context) error {
	s, err := c.DS.GetSession(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.fail(ctx, err, "session lookup failed")
	}
	return ctx.JSON(http.StatusOK, s)
}
