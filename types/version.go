package types

// Version is the canonical bundler version.
const Version = "0.3.0"
