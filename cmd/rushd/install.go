package main

type InstallCmd struct{}

func (c *InstallCmd) Run(cctx *Context) error {
	r, err := cctx.newReactor()
	if err != nil {
		return err
	}
	return r.InstallManifests(cctx.ctx)
}

type UninstallCmd struct{}

func (c *UninstallCmd) Run(cctx *Context) error {
	r, err := cctx.newReactor()
	if err != nil {
		return err
	}
	return r.UninstallManifests(cctx.ctx)
}
