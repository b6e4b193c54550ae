package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/lensnet-go/internal/bestshot"
)

func (c *Controller) initBestShotRoutes() {
	g := c.Group.Group("/bestshot")
	g.GET("", c.GetBestShot)
	g.POST("", c.StartBestShot)
	g.DELETE("", c.StopBestShot)
}

// StartBestShotRequest is the body of POST /bestshot.
type StartBestShotRequest struct {
	DurationSeconds float64 `json:"duration_seconds"`
	TargetLabel     string  `json:"target_label"`
	Threshold       float32 `json:"threshold"`
}

// GetBestShot handles GET /api/v1/bestshot.
func (c *Controller) GetBestShot(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.Camera.BestShotProgress())
}

// StartBestShot handles POST /api/v1/bestshot.
func (c *Controller) StartBestShot(ctx echo.Context) error {
	var req StartBestShotRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	p := bestshot.Params{
		Duration:    time.Duration(req.DurationSeconds * float64(time.Second)),
		TargetLabel: req.TargetLabel,
		Threshold:   req.Threshold,
	}
	// The session outlives the request.
	id, err := c.Camera.StartBestShot(c.ctx, p)
	if err != nil {
		return c.fail(ctx, err, "best shot not started")
	}
	return ctx.JSON(http.StatusAccepted, map[string]string{"session_id": id})
}

// StopBestShot handles DELETE /api/v1/bestshot?finalize=true. With
// finalize the ranked candidates are returned; without, they are discarded.
func (c *Controller) StopBestShot(ctx echo.Context) error {
	finalize := false
	if v := ctx.QueryParam("finalize"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c.HandleError(ctx, err, "finalize must be a boolean", http.StatusBadRequest)
		}
		finalize = b
	}
	cands, err := c.Camera.StopBestShot(finalize)
	if err != nil {
		return c.fail(ctx, err, "best shot stop failed")
	}
	if cands == nil {
		cands = []bestshot.Candidate{}
	}
	return ctx.JSON(http.StatusOK, cands)
}
