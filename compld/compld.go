// The compld package is the completion module's lifecycle: Init
// creates the module's gate device and registers it under its name
// (and, if configured, on a FUSE mount); Teardown undoes that.  At
// most one module is loaded at a time; it must be initialized before
// any device call and torn down after the last one.
package compld

import (
	"context"
	"fmt"
	"sync"

	"complgate/config"
	db "complgate/debug"
	"complgate/devreg"
	"complgate/fusedev"
	"complgate/gatedev"
	"complgate/util/tracing"
)

var (
	mu     sync.Mutex
	loaded *Compld
)

type Compld struct {
	mu     sync.Mutex
	cfg    *config.Config
	reg    *devreg.Registry
	gd     *gatedev.GateDev
	fsrv   *fusedev.FuseSrv
	tracer *tracing.Tracer
	down   bool
}

// Init loads the module with cfg, registering its device in reg.
func Init(cfg *config.Config, reg *devreg.Registry) (*Compld, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()

	if loaded != nil {
		return nil, fmt.Errorf("module %v already loaded", loaded.cfg.Name)
	}
	db.SetLabels(cfg.Debug)
	tracer, err := tracing.Init(cfg.Name, cfg.Jaeger)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	cd := &Compld{
		cfg:    cfg,
		reg:    reg,
		tracer: tracer,
		gd:     gatedev.NewGateDev(cfg.Name, cfg.SharingMode(), tracer),
	}
	if err := reg.Register(cfg.Name, cd.gd); err != nil {
		tracer.Shutdown()
		return nil, err
	}
	if cfg.Mount != "" {
		fsrv, err := fusedev.Mount(cfg.Mount, reg, cfg.FuseDebug)
		if err != nil {
			reg.Unregister(cfg.Name)
			tracer.Shutdown()
			return nil, err
		}
		cd.fsrv = fsrv
	}
	loaded = cd
	db.DPrintf(db.ALWAYS, "%v is loaded (init) %v", cfg.Name, cd.gd)
	return cd, nil
}

// Loaded returns the loaded module, if any.
func Loaded() (*Compld, bool) {
	mu.Lock()
	defer mu.Unlock()
	return loaded, loaded != nil
}

func (cd *Compld) String() string {
	return fmt.Sprintf("{compld %v}", cd.cfg)
}

func (cd *Compld) Config() *config.Config {
	return cd.cfg
}

func (cd *Compld) Registry() *devreg.Registry {
	return cd.reg
}

func (cd *Compld) Dev() *gatedev.GateDev {
	return cd.gd
}

func (cd *Compld) Mountpoint() string {
	if cd.fsrv == nil {
		return ""
	}
	return cd.fsrv.Mountpoint()
}

// Serve blocks until ctx is done or the FUSE mount goes away.
func (cd *Compld) Serve(ctx context.Context) {
	unmounted := make(chan struct{})
	if cd.fsrv != nil {
		go func() {
			cd.fsrv.Wait()
			close(unmounted)
		}()
	}
	select {
	case <-ctx.Done():
		db.DPrintf(db.COMPLD, "%v: serve done: %v", cd.cfg.Name, ctx.Err())
	case <-unmounted:
		db.DPrintf(db.COMPLD, "%v: unmounted", cd.cfg.Name)
	}
}

// Teardown unloads the module: the FUSE mount and the registration go
// away, and readers still blocked in the device return TErrClosed.
// Teardown is idempotent.
func (cd *Compld) Teardown() error {
	cd.mu.Lock()
	defer cd.mu.Unlock()

	if cd.down {
		return nil
	}
	cd.down = true

	// Wake blocked readers first: a reader parked in read(2) on the
	// mount keeps it busy, and Unmount would fail.
	cd.gd.Shutdown()
	var merr error
	if cd.fsrv != nil {
		if err := cd.fsrv.Unmount(); err != nil {
			db.DPrintf(db.COMPLD_ERR, "Unmount %v err %v", cd.fsrv.Mountpoint(), err)
			merr = err
		}
	}
	if err := cd.reg.Unregister(cd.cfg.Name); err != nil {
		db.DPrintf(db.COMPLD_ERR, "Unregister %v err %v", cd.cfg.Name, err)
	}
	cd.tracer.Shutdown()

	mu.Lock()
	if loaded == cd {
		loaded = nil
	}
	mu.Unlock()

	db.DPrintf(db.ALWAYS, "%v unloaded (exit)", cd.cfg.Name)
	return merr
}
