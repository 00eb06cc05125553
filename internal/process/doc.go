// Package process supervises long-running goroutine tasks.
//
// The bridge's MQTT command loop ends when its broker session is lost. A
// Supervisor runs it again with exponential backoff instead of taking the
// whole bridge down.
//
// Features:
//   - Automatic restart on failure with capped exponential backoff
//   - Backoff reset after a run that stayed up for StableThreshold
//   - Optional limit on consecutive restarts
//   - Context-based cancellation for clean shutdown
//   - Status reporting for the status API
//
// Example usage:
//
//	sup := process.NewSupervisor(process.Config{
//	    Name:             "command-loop",
//	    RestartOnFailure: true,
//	    RestartDelay:     time.Second,
//	    MaxRestartDelay:  time.Minute,
//	})
//	sup.SetLogger(logger)
//
//	err := sup.Run(ctx, bridge.RunCommandLoop)
package process
