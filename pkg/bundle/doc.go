// Package bundle implements the Go-native build steps available to task scripts.
//
// Each step is a plain function (Concat, Minify, CompressFile, ReplaceFile, CopyFiles,
// PackDir, ...) which can be used on its own. Importing this package registers the
// matching actions with buildsys:
//
//	version(package="package.json", var="version")
//	release_mode()
//	replace(src=..., dest=..., old=..., new=...)
//	bundle(manifest=... or inputs=[...], output=..., minify=False, brotli=False, check=True)
//	copy(files=[...], dest=...)
//	pack(src=..., output=...)
//
// String arguments may reference variables set by earlier actions, e.g. new="{version}".
package bundle
