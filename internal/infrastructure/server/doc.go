// Package server assembles the application host process: configuration,
// logging, metrics, tracing, the resource loader, the isolation engine, the
// default plugins and the admin API router.
//
// Example Usage:
//
//	srv, err := server.NewServer(config.LoadOrDefault(), apps)
//	if err != nil {
//		return err
//	}
//	go srv.Run()
//	defer srv.Shutdown(ctx)
package server
