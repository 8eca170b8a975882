// Package config loads and merges focus configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (FOCUS_BASELINE, FOCUS_MAX_TOKENS, FOCUS_CACHE_STRATEGY, etc.)
//  3. Project file (.focus.toml at the repository root)
//  4. User config file ($XDG_CONFIG_HOME/focus/config.json)
//  5. Built-in defaults
//
// Use [Load] to obtain a merged and validated [Config], [Save] or
// [SaveProject] to write one, and [SetField] to update a single key.
package config
