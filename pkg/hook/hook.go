// Package hook runs user-provided Tengo scripts around install and removal
// operations. Scripts live in the hooks directory under the porter root, one
// file per hook type, and receive the affected package as script variables.
package hook

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/glorpus-work/porter/internal/logger"
	"github.com/glorpus-work/porter/pkg/errors"
)

// Type identifies when a hook script runs.
type Type string

// Supported hook types.
const (
	PreInstall  Type = "pre-install"
	PostInstall Type = "post-install"
	PreRemove   Type = "pre-remove"
	PostRemove  Type = "post-remove"
)

// scriptExtension is the file extension hook scripts must carry.
const scriptExtension = ".tengo"

// Context carries the package details exposed to a hook script.
type Context struct {
	PkgID       string
	Name        string
	Version     string
	InstallPath string
	BinPath     string
	Vars        map[string]interface{}
}

// Executor loads and runs hook scripts. A missing script for a hook type is
// not an error; the hook is simply skipped.
type Executor struct {
	scripts map[Type]string
	mu      sync.RWMutex
}

// NewExecutor creates an executor with no scripts loaded.
func NewExecutor() *Executor {
	return &Executor{scripts: make(map[Type]string)}
}

// LoadDir reads hook scripts from dir, expecting <type>.tengo filenames. A
// missing directory loads nothing.
func (e *Executor) LoadDir(dir string) error {
	types := []Type{PreInstall, PostInstall, PreRemove, PostRemove}
	for _, t := range types {
		path := filepath.Join(dir, string(t)+scriptExtension)
		content, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, "reading hook script %s", path)
		}
		e.Add(t, string(content))
	}
	return nil
}

// Add registers or replaces the script for a hook type.
func (e *Executor) Add(t Type, script string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[t] = script
}

// Remove drops the script for a hook type.
func (e *Executor) Remove(t Type) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.scripts, t)
}

// Has reports whether a script is registered for a hook type.
func (e *Executor) Has(t Type) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.scripts[t]
	return ok
}

// Execute runs the script for the given hook type. A script signals failure
// by assigning a non-empty string or error to the `err` variable.
func (e *Executor) Execute(t Type, hctx Context) error {
	e.mu.RLock()
	script, ok := e.scripts[t]
	e.mu.RUnlock()
	if !ok {
		return nil
	}

	logger.Debug("running hook", logger.Fields{"type": string(t), "pkg_id": hctx.PkgID})

	instance := tengo.NewScript([]byte(script))
	instance.SetImports(stdlib.GetModuleMap("fmt", "os", "text", "times"))

	_ = instance.Add("pkgID", hctx.PkgID)
	_ = instance.Add("packageName", hctx.Name)
	_ = instance.Add("packageVersion", hctx.Version)
	_ = instance.Add("installPath", hctx.InstallPath)
	_ = instance.Add("binPath", hctx.BinPath)
	for k, v := range hctx.Vars {
		_ = instance.Add(k, v)
	}

	compiled, err := instance.Run()
	if err != nil {
		return errors.Wrapf(errors.ErrHookScript, "%s: %v", t, err)
	}

	if errVar := compiled.Get("err"); errVar != nil {
		switch v := errVar.Value().(type) {
		case error:
			return errors.Wrapf(errors.ErrHookScript, "%s: %v", t, v)
		case string:
			if v != "" {
				return errors.Wrapf(errors.ErrHookScript, "%s: %s", t, v)
			}
		}
	}
	return nil
}
