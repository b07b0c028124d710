package main

type ApplyCmd struct{}

func (c *ApplyCmd) Run(cctx *Context) error {
	r, err := cctx.newReactor()
	if err != nil {
		return err
	}
	return r.Apply(cctx.ctx)
}

type UnapplyCmd struct{}

func (c *UnapplyCmd) Run(cctx *Context) error {
	r, err := cctx.newReactor()
	if err != nil {
		return err
	}
	return r.Unapply(cctx.ctx)
}
