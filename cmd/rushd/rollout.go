package main

type RolloutCmd struct{}

func (c *RolloutCmd) Run(cctx *Context) error {
	r, err := cctx.newReactor()
	if err != nil {
		return err
	}
	return r.Rollout(cctx.ctx)
}
