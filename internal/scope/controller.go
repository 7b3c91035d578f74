package scope

import "sync/atomic"

// Controller holds the single stop flag. It starts false and, once set, stays
// set; there is no resume.
type Controller struct {
	cancelled atomic.Bool
}

// NewController returns a controller in the running state.
func NewController() *Controller {
	return &Controller{}
}

// OnClick is the renderer's click callback. Any press stops the scope.
func (c *Controller) OnClick() {
	c.cancelled.Store(true)
}

// Cancel sets the flag from outside the render loop (signal handlers).
func (c *Controller) Cancel() {
	c.cancelled.Store(true)
}

// Cancelled reports whether a stop has been requested.
func (c *Controller) Cancelled() bool {
	return c.cancelled.Load()
}
