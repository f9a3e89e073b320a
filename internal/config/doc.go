// Package config loads gif-pipeline settings from TOML.
//
// The file is looked up at ~/.config/gif-pipeline/config.toml and then at
// ./gif-pipeline.toml unless an explicit path is given. Every key is optional;
// command-line flags override the values found here.
package config
