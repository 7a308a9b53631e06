// Package config provides configuration management for coopctl.
//
// The configuration is a single YAML file describing the door, the radio it
// is reached through and the link retry policy. Durations are written as Go
// duration strings ("1s", "250ms").
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/coopdoor/config.yaml or $HOME/.config/coopdoor/config.yaml
//   - macOS: $HOME/.config/coopdoor/config.yaml
//   - Windows: %LOCALAPPDATA%\coopdoor\config.yaml
//
// # Example
//
//	version: 1
//	device:
//	  id: "1"
//	  initial_state: closed
//	link:
//	  attempt_timeout: 1s
//	  max_attempts: 5
//	radio:
//	  kind: serial
//	  port: /dev/ttyUSB0
//	  baud: 9600
//	logging:
//	  level: info
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctrl, err := cover.New(radio, cover.Config{
//	    DeviceID:     cfg.Device.ID,
//	    InitialState: cfg.InitialState(),
//	    Policy:       cfg.Link,
//	})
//
// A missing file is not an error: Load returns Default(). Save writes
// atomically through a temporary file with 0600 permissions.
package config
