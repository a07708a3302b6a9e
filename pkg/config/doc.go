// Package config loads typed configuration from environment variables.
//
// Structs declare their variables with caarlos0/env tags; a .env file is read
// through godotenv when present. Every component owns its config type
// (database, cache, HTTP server, billing webhooks) and loads it independently:
//
//	var pgCfg pg.Config
//	config.MustLoad(&pgCfg)
//
// Types implementing Validator are checked after parsing, so a bad value
// fails at startup instead of at first use.
package config
