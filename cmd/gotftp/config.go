package main

import (
	"os"
	"time"

	"gopkg.in/ini.v1"
)

// defaults holds the values the flag set is seeded with before
// flag.Parse() runs, so that a config file can lower them without
// overriding anything the user typed on the command line.
type defaults struct {
	host    string
	port    string
	mode    string
	retries int
	timeout time.Duration
	verbose bool
}

// loadDefaults reads an optional [tftp] section from path (same ini.v1
// dialect the teacher uses for EDS files) and overlays any keys it finds
// onto base. A missing file is not an error: the built-in defaults apply.
func loadDefaults(path string, base defaults) defaults {
	if _, err := os.Stat(path); err != nil {
		return base
	}
	cfg, err := ini.Load(path)
	if err != nil {
		return base
	}
	section := cfg.Section("tftp")

	if k, err := section.GetKey("host"); err == nil {
		base.host = k.Value()
	}
	if k, err := section.GetKey("port"); err == nil {
		base.port = k.Value()
	}
	if k, err := section.GetKey("mode"); err == nil {
		base.mode = k.Value()
	}
	if k, err := section.GetKey("retries"); err == nil {
		if n, cerr := k.Int(); cerr == nil {
			base.retries = n
		}
	}
	if k, err := section.GetKey("timeout_ms"); err == nil {
		if n, cerr := k.Int(); cerr == nil {
			base.timeout = time.Duration(n) * time.Millisecond
		}
	}
	if k, err := section.GetKey("verbose"); err == nil {
		if b, cerr := k.Bool(); cerr == nil {
			base.verbose = b
		}
	}
	return base
}
