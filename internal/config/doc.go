// Package config loads flr configuration from a JSON or YAML file and
// overlays FLR_* environment variables.
//
// Example:
//
//	cfg, err := config.Load("/etc/flr.yaml")
//	if err != nil { /* handle */ }
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { /* handle */ }
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
package config
