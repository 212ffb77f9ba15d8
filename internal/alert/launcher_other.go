//go:build !unix

package alert

import "syscall"

func detachedProcAttr() *syscall.SysProcAttr { return nil }
