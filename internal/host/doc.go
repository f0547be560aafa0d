// Package host is the orchestrator. It keeps the registered application
// descriptors, the cache of loaded instances and the in-flight load table,
// drives the load pipeline through the loader and fires the lifecycle
// hooks plugins attach to.
//
// Example Usage:
//
//	h, err := host.New(host.Options{Apps: infos}, host.Deps{Logger: logger})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = h.Run(host.Options{Plugins: plugins})
//	inst, err := h.LoadApp(ctx, "shop", nil)
//	if inst == nil && err == nil {
//	    // the load was aborted or failed; see the ErrorLoadApp hook
//	}
package host
