/*
Package log provides structured logging for Roost using zerolog.

A single global logger is initialized once via Init and shared by all
components. Child loggers carry contextual fields:

	logger := log.WithComponent("reconciler")
	logger.Info().Str("workload", "db").Int("replicas", 3).Msg("scaling")

WithWorkload and WithUnit attach the namespace/workload/ordinal fields
used across the controller so log lines from different components can be
correlated per unit.

Output is JSON in production and a console writer for interactive use,
selected through Config.JSONOutput.
*/
package log
