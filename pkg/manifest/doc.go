// Package manifest expands build manifests into the list of source files they reference.
//
// A manifest is a JSON (or YAML) list of paths relative to the manifest's own directory.
// Entries ending in a manifest suffix (".json" by default) are nested manifests and get
// expanded recursively, everything else is a leaf file:
//
//	// build.json
//	["src/boot.js", "src/lib/build.json", "src/polymer.js"]
//
// Resolving a manifest yields every leaf in the transitive closure exactly once. Nested
// manifests that reference each other are reported as a *CycleError instead of
// recursing forever.
package manifest
