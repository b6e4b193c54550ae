package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/lensnet-go/internal/inference"
	"github.com/tphakala/lensnet-go/internal/privacy/faceblur"
)

// Bounds for PUT /throttle.
const (
	MinThrottleInterval = 20 * time.Millisecond
	MaxThrottleInterval = 10 * time.Second
)

func (c *Controller) initCameraRoutes() {
	c.Group.GET("/status", c.GetStatus)
	c.Group.GET("/live", c.GetLive)

	c.Group.GET("/models", c.ListModels)
	c.Group.PUT("/model", c.SwitchModel)

	cam := c.Group.Group("/camera")
	cam.GET("/devices", c.ListDevices)
	cam.PUT("/lens", c.SwitchLens)
	cam.POST("/flip", c.FlipCamera)
	cam.POST("/photo", c.CapturePhoto)

	c.Group.PUT("/throttle", c.SetThrottle)

	c.Group.GET("/highlight/rules", c.GetHighlightRules)
	c.Group.PUT("/highlight/rules", c.SetHighlightRules)

	c.Group.PUT("/capture/assisted", c.SetAssistedCapture)
	c.Group.PUT("/privacy/faceblur", c.SetFaceBlur)
}

// GetStatus handles GET /api/v1/status.
func (c *Controller) GetStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.Camera.Status())
}

// GetLive handles GET /api/v1/live, the current live results.
func (c *Controller) GetLive(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.Camera.Snapshot())
}

// ModelEntry describes one supported model.
type ModelEntry struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Input  int    `json:"input_size"`
	Active bool   `json:"active"`
}

// ListModels handles GET /api/v1/models.
func (c *Controller) ListModels(ctx echo.Context) error {
	active := c.Camera.Status().Model
	var out []ModelEntry
	for _, t := range inference.SupportedModels() {
		spec, _ := t.Spec()
		out = append(out, ModelEntry{
			ID:     t.String(),
			Name:   spec.Name,
			Input:  spec.InputSize,
			Active: t == active,
		})
	}
	return ctx.JSON(http.StatusOK, out)
}

// SwitchModelRequest is the body of PUT /model.
type SwitchModelRequest struct {
	Model string `json:"model"`
}

// SwitchModel handles PUT /api/v1/model. The switch completes in the
// background; the response is 202 and progress shows up in /status.
func (c *Controller) SwitchModel(ctx echo.Context) error {
	var req SwitchModelRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	t, err := inference.ParseModelType(req.Model)
	if err != nil {
		return c.fail(ctx, err, "unknown model")
	}
	if err := c.Camera.SwitchModel(t); err != nil {
		return c.fail(ctx, err, "model switch rejected")
	}
	return ctx.JSON(http.StatusAccepted, map[string]string{"model": t.String(), "status": "switching"})
}

// ListDevices handles GET /api/v1/camera/devices.
func (c *Controller) ListDevices(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.Camera.Devices())
}

// SwitchLensRequest is the body of PUT /camera/lens.
type SwitchLensRequest struct {
	DeviceID string `json:"device_id"`
}

// SwitchLens handles PUT /api/v1/camera/lens.
func (c *Controller) SwitchLens(ctx echo.Context) error {
	var req SwitchLensRequest
	if err := ctx.Bind(&req); err != nil || req.DeviceID == "" {
		return c.HandleError(ctx, err, "device_id is required", http.StatusBadRequest)
	}
	if err := c.Camera.SwitchLens(req.DeviceID); err != nil {
		return c.fail(ctx, err, "lens switch failed")
	}
	return ctx.JSON(http.StatusOK, c.Camera.Status().Device)
}

// FlipCamera handles POST /api/v1/camera/flip.
func (c *Controller) FlipCamera(ctx echo.Context) error {
	if err := c.Camera.SwitchFrontBack(); err != nil {
		return c.fail(ctx, err, "camera flip failed")
	}
	return ctx.JSON(http.StatusOK, c.Camera.Status().Device)
}

// CapturePhoto handles POST /api/v1/camera/photo and returns the JPEG.
func (c *Controller) CapturePhoto(ctx echo.Context) error {
	photo, err := c.Camera.CapturePhoto(ctx.Request().Context())
	if err != nil {
		return c.fail(ctx, err, "photo capture failed")
	}
	h := ctx.Response().Header()
	h.Set("X-Capture-Id", photo.ID)
	h.Set("X-Faces-Blurred", strconv.Itoa(photo.FacesBlurred))
	return ctx.Blob(http.StatusCreated, "image/jpeg", photo.Data)
}

// ThrottleRequest is the body of PUT /throttle.
type ThrottleRequest struct {
	MinIntervalMs int64 `json:"min_interval_ms"`
}

// SetThrottle handles PUT /api/v1/throttle.
func (c *Controller) SetThrottle(ctx echo.Context) error {
	var req ThrottleRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	d := time.Duration(req.MinIntervalMs) * time.Millisecond
	if d < MinThrottleInterval || d > MaxThrottleInterval {
		return c.HandleError(ctx, nil, "min_interval_ms out of range", http.StatusBadRequest)
	}
	c.Camera.SetMinInterval(d)
	return ctx.JSON(http.StatusOK, map[string]string{"min_interval": d.String()})
}

// GetHighlightRules handles GET /api/v1/highlight/rules.
func (c *Controller) GetHighlightRules(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.Camera.HighlightRules())
}

// SetHighlightRules handles PUT /api/v1/highlight/rules. The body is a map
// from label to minimum confidence and replaces the whole rule set.
func (c *Controller) SetHighlightRules(ctx echo.Context) error {
	var rules map[string]float64
	if err := ctx.Bind(&rules); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	for label, min := range rules {
		if min < 0 || min > 1 {
			return c.HandleError(ctx, nil, "threshold for "+strconv.Quote(label)+" must be within [0, 1]", http.StatusBadRequest)
		}
	}
	c.Camera.SetHighlightRules(rules)
	return ctx.JSON(http.StatusOK, c.Camera.HighlightRules())
}

// ToggleRequest is the body of boolean settings.
type ToggleRequest struct {
	Enabled *bool  `json:"enabled"`
	Style   string `json:"style,omitempty"`
}

// SetAssistedCapture handles PUT /api/v1/capture/assisted.
func (c *Controller) SetAssistedCapture(ctx echo.Context) error {
	var req ToggleRequest
	if err := ctx.Bind(&req); err != nil || req.Enabled == nil {
		return c.HandleError(ctx, err, "enabled is required", http.StatusBadRequest)
	}
	c.Camera.SetAssistedCapture(*req.Enabled)
	return ctx.JSON(http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

// SetFaceBlur handles PUT /api/v1/privacy/faceblur.
func (c *Controller) SetFaceBlur(ctx echo.Context) error {
	var req ToggleRequest
	if err := ctx.Bind(&req); err != nil || req.Enabled == nil {
		return c.HandleError(ctx, err, "enabled is required", http.StatusBadRequest)
	}
	if req.Style != "" {
		style, err := faceblur.ParseStyle(req.Style)
		if err != nil {
			return c.fail(ctx, err, "invalid blur style")
		}
		c.Camera.SetBlurStyle(style)
	}
	c.Camera.SetFaceBlur(*req.Enabled)
	return ctx.JSON(http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}
