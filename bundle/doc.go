// Package bundle assembles a support bundle: a zip archive of diagnostic
// files contributed by components.
//
// A Component declares the permission it needs and adds Contents to a
// Container. Contents are lazy: nothing is computed until the Builder
// materializes them, in parallel, right before writing the archive.
package bundle
