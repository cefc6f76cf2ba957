// Package collector provides the bundle components that gather node
// diagnostics.
package collector
