// Package shutdown provides graceful shutdown for heapsight's watch command.
//
// Usage:
//
//	h := shutdown.NewHandler(5*time.Second, logger)
//	h.OnShutdown("metrics", srv.Shutdown)
//	err := h.Wait(ctx) // returns after SIGINT/SIGTERM and the hooks
package shutdown
