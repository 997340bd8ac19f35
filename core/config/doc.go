// Package config fills env-tagged structs from the process environment.
//
// The first call loads a .env file if one exists (godotenv) and parses with
// caarlos0/env. Results are cached per struct type, so every component that
// asks for the same config type gets the same values:
//
//	var cfg admission.Config
//	if err := config.Load(&cfg); err != nil {
//		return fmt.Errorf("admission config: %w", err)
//	}
//
// MustLoad panics instead and suits package main.
package config
