// Package api implements the read-only HTTP status API and WebSocket stream
// for the kettle bridge.
//
// This package provides:
//   - GET /api/v1/health for liveness checks
//   - GET /api/v1/kettle with the last published telemetry and counters
//   - GET /api/v1/fsr with the fill-level sampler window
//   - GET /api/v1/ws streaming every publish as a "kettle.state" event
//   - Middleware stack (request ID, logging, recovery)
//
// # Architecture
//
// The API never talks to the kettle. It reads what the bridge last published,
// so a slow or absent kettle cannot stall an HTTP request. Commands stay on
// MQTT.
//
// The Hub satisfies kettlebridge.StateObserver and is handed to the bridge at
// start-up:
//
//	hub := api.NewHub(logger)
//	bridge, _ := kettlebridge.NewBridge(kettlebridge.BridgeOptions{Observer: hub, ...})
//	server, _ := api.New(api.Deps{Bridge: bridge, Hub: hub, ...})
//	server.Start(ctx)
//	defer server.Close()
package api
