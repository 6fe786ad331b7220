// Package config defines the flat, flag-based startup configuration for
// the hub process. This is the ambient configuration layer only — no
// subcommands, no config file format, no interactive prompts, matching
// the "CLI/argument parser is out of scope" boundary.
package config

import (
	"flag"
	"time"
)

// Config holds every startup knob the hub process accepts.
type Config struct {
	Host             string
	ControlPort      int
	AudioPort        int
	VideoPort        int
	UploadDir        string
	AdminAddr        string
	LogFormat        string
	ShutdownTimeout  time.Duration
}

// Parse builds a Config from args (typically os.Args[1:]).
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("lanhub", flag.ContinueOnError)

	cfg := Config{}
	fs.StringVar(&cfg.Host, "host", "0.0.0.0", "bind host for all listeners")
	fs.IntVar(&cfg.ControlPort, "port", 9000, "TCP control channel port")
	fs.IntVar(&cfg.AudioPort, "audio-port", 11000, "UDP audio mix port")
	fs.IntVar(&cfg.VideoPort, "video-port", 10000, "UDP video/screen fan-out port")
	fs.StringVar(&cfg.UploadDir, "upload-dir", "uploads", "directory for completed file uploads")
	fs.StringVar(&cfg.AdminAddr, "admin-addr", "", "optional host:port for the admin status HTTP surface (disabled if empty)")
	fs.StringVar(&cfg.LogFormat, "log-format", "text", "log output format: text or json")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 5*time.Second, "per-subsystem graceful shutdown budget")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
