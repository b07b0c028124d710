package main

type PushCmd struct{}

func (c *PushCmd) Run(cctx *Context) error {
	r, err := cctx.newReactor()
	if err != nil {
		return err
	}
	return r.BuildAndPush(cctx.ctx)
}
