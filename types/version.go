package types

// Version is the canonical project version.
// The CLI, audit record shape, and frame encoding share this version
// per the lockstep versioning policy.
const Version = "0.3.0"
