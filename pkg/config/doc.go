// Package config loads tfsandbox configuration from YAML or TOML files.
//
// Values are layered: built-in defaults, then the file, then TFSANDBOX_*
// environment variables. The result is validated with struct tags before
// use. A Loader can watch the file and hand reloaded configurations to
// registered callbacks; an invalid edit is reported and the previous
// configuration stays current.
//
//	cfg, err := config.Load("tfsandbox.yaml")
//	if err != nil {
//		return err
//	}
//	store, err := workspace.NewDirStore(cfg.Workspace.Dir)
package config
