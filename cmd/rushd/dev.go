package main

// DevCmd runs the full stack locally with hot rebuilds, spec.md §4.8's
// launch loop.
type DevCmd struct{}

func (c *DevCmd) Run(cctx *Context) error {
	r, err := cctx.newReactor()
	if err != nil {
		return err
	}
	return r.Launch(cctx.ctx)
}
