// Package buildsys implements a minimal build system based on Starlark for the task definitions
// and mvdan.cc/sh for the shell runtime.
// Besides shell commands, tasks can run actions: Go-native build steps registered with
// RegisterAction which show up as builtins in the task script.
package buildsys
