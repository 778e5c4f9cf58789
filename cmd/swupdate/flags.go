package main

import "time"

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	EnvDir     string
	LogLevel   string
}

type RunFlags struct {
	Issue      string
	Repository string
}

type DaemonFlags struct {
	Every         time.Duration
	MetricsListen string
	SkipFirst     bool
}

type StoreFlags struct {
	Listen string
	DSN    string
	Token  string
	TLSDir string
}
