// Package redact removes secrets from extracted context before it is handed
// to a reviewer.
//
// Detection uses regex heuristics covering common secret shapes: API keys,
// JWTs, private keys, AWS credentials, bearer tokens, connection strings
// with inline passwords, and provider-specific tokens.
//
// Files whose paths match a configured pattern (for example "**/.env") have
// their whole text replaced instead of being scanned.
package redact
