// Package settings persists user preferences in the session key-value
// store, merged over configured defaults.
package settings
