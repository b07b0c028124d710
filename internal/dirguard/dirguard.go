// Package dirguard provides scoped guards for process-global state: the
// current working directory and environment variables. Each guard
// restores the prior value on release, and guards nest LIFO, matching the
// scoped resource pattern the reactor relies on for cross-compile builds
// and per-product chdirs.
package dirguard

import (
	"fmt"
	"os"
	"sync"
)

// chdirMu serializes each working-directory switch and restore
// process-wide, since os.Chdir is global state. It is not held between
// Chdir and Release, so guards can nest within one goroutine and restore
// LIFO when released in reverse acquisition order.
var chdirMu sync.Mutex

// DirGuard restores the previous working directory when released.
type DirGuard struct {
	previous string
	release  sync.Once
}

// Chdir switches into dir and returns a guard that restores the previous
// working directory on Release. Release is safe to call via defer and is
// idempotent.
func Chdir(dir string) (*DirGuard, error) {
	chdirMu.Lock()
	defer chdirMu.Unlock()
	previous, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("dirguard: getwd: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return nil, fmt.Errorf("dirguard: chdir %s: %w", dir, err)
	}
	return &DirGuard{previous: previous}, nil
}

// Release restores the working directory that was active before Chdir.
func (g *DirGuard) Release() error {
	var err error
	g.release.Do(func() {
		chdirMu.Lock()
		defer chdirMu.Unlock()
		err = os.Chdir(g.previous)
	})
	return err
}

// EnvGuard restores a set of environment variables to their prior values
// (or unsets them if they were previously unset) when released.
type EnvGuard struct {
	prior   map[string]*string
	release sync.Once
}

// SetEnv sets the given environment variables and returns a guard that
// restores their previous values on Release. Nested EnvGuards restore in
// LIFO order as long as callers release them in reverse acquisition order.
func SetEnv(vars map[string]string) (*EnvGuard, error) {
	prior := make(map[string]*string, len(vars))
	for k := range vars {
		if v, ok := os.LookupEnv(k); ok {
			val := v
			prior[k] = &val
		} else {
			prior[k] = nil
		}
	}
	for k, v := range vars {
		if err := os.Setenv(k, v); err != nil {
			return nil, fmt.Errorf("dirguard: setenv %s: %w", k, err)
		}
	}
	return &EnvGuard{prior: prior}, nil
}

// Release restores every variable SetEnv touched to its prior state.
func (g *EnvGuard) Release() error {
	var err error
	g.release.Do(func() {
		for k, v := range g.prior {
			if v == nil {
				if e := os.Unsetenv(k); e != nil && err == nil {
					err = e
				}
				continue
			}
			if e := os.Setenv(k, *v); e != nil && err == nil {
				err = e
			}
		}
	})
	return err
}
