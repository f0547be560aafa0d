// Package app holds application descriptors and the instances built from
// them.
//
// An App is the materialized result of a completed load: the entry markup,
// the scripts and stylesheets it references, and an optional isolation
// handle. Mount renders the markup into a container element and executes
// the scripts in document order; Unmount detaches the container again.
//
// Example Usage:
//
//	inst := app.New(deps, info, entry, resources, true)
//	if err := inst.Mount(ctx); err != nil {
//	    log.Printf("mount failed: %v", err)
//	}
//	defer inst.Unmount(ctx)
package app
