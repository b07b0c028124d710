package main

type DeployCmd struct{}

func (c *DeployCmd) Run(cctx *Context) error {
	r, err := cctx.newReactor()
	if err != nil {
		return err
	}
	return r.Deploy(cctx.ctx)
}
