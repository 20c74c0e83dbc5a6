//go:build !unix && !windows

package ollama

import "syscall"

func detachedAttr() *syscall.SysProcAttr { return nil }
