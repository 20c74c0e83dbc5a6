//go:build windows

package ollama

import "syscall"

// detachedProcess is DETACHED_PROCESS from the Win32 process creation flags.
const detachedProcess = 0x00000008

func detachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | detachedProcess,
		HideWindow:    true,
	}
}
