package main

import "time"

// Flag structs decouple cobra from command logic for testing.

type RunFlags struct {
	ConfigPath  string
	LookupPath  string
	Lot         string
	Port        int
	Listen      string
	Interactive bool
	Launch      bool
}

type ControlFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
}

type RecordsFlags struct {
	ControlFlags
	Status string
	Since  int
}

type ChromeFlags struct {
	ConfigPath string
	Port       int
	ProfileDir string
	Binary     string
	StartURL   string
}
