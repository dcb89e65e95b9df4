package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

const streamBoundary = "facegateframe"

func (c *Controller) initStreamRoutes() {
	c.Group.GET("/stream", c.LiveStream)
}

// LiveStream handles GET /api/v1/stream, a multipart motion-JPEG preview fed
// from the camera pipeline. A disconnecting client never signals close
// explicitly; the write failure is the only notification. Cleanup of the
// flags this stream enabled runs on that failure path, so a dropped preview
// cannot leave the recognition mode forced on or an enrollment session
// dangling.
func (c *Controller) LiveStream(ctx echo.Context) error {
	if c.pipeline == nil {
		return c.HandleError(ctx, nil, "no camera pipeline attached", http.StatusServiceUnavailable)
	}

	forcedMode := ctx.QueryParam("active") == "true"
	if forcedMode {
		c.attendance.SetAutoMode(true)
	}
	defer func() {
		if forcedMode {
			c.attendance.SetAutoMode(false)
		}
		c.coordinator.Cancel("stream closed")
	}()

	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType,
		fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", streamBoundary))
	resp.WriteHeader(http.StatusOK)

	for {
		select {
		case <-ctx.Request().Context().Done():
			return nil
		default:
		}

		frame, err := c.pipeline.Capture()
		if err != nil {
			return nil
		}
		data := frame.Bytes()
		_, werr := fmt.Fprintf(resp,
			"--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", streamBoundary, len(data))
		if werr == nil {
			_, werr = resp.Write(data)
		}
		if werr == nil {
			_, werr = fmt.Fprint(resp, "\r\n")
		}
		frame.Release()
		if werr != nil {
			// Client is gone; the deferred cleanup restores the flags.
			return nil
		}
		resp.Flush()
	}
}
