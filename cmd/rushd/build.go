package main

type BuildCmd struct{}

func (c *BuildCmd) Run(cctx *Context) error {
	r, err := cctx.newReactor()
	if err != nil {
		return err
	}
	return r.Build(cctx.ctx)
}
