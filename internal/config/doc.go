// Package config loads, normalizes, and validates Herald configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for
// platform credentials such as TWITTER_ACCESS_TOKEN and FACEBOOK_PAGE_ID.
// The Config type centralizes every knob the daemon and CLI need so the
// queue file, asset roots, and platform bindings are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
// Credentials must only be displayed through Redact.
package config
