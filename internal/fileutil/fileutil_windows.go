//go:build windows

package fileutil

import (
	"fmt"
	"path/filepath"
	"syscall"
	"unsafe"
)

var procSHFileOperationW = syscall.NewLazyDLL("shell32.dll").NewProc("SHFileOperationW")

// SHFILEOPSTRUCTW flags and operation codes
const (
	foDelete          = 0x3
	fofSilent         = 0x4
	fofNoConfirmation = 0x10
	fofAllowUndo      = 0x40
	fofNoErrorUI      = 0x400
)

// https://learn.microsoft.com/en-us/windows/win32/api/shellapi/ns-shellapi-shfileopstructw
type shFileOpStruct struct {
	hwnd                  uintptr
	wFunc                 uint32
	pFrom                 *uint16
	pTo                   *uint16
	fFlags                uint16
	fAnyOperationsAborted int32
	hNameMappings         uintptr
	lpszProgressTitle     *uint16
}

// recycle sends path to the Recycle Bin; FOF_ALLOWUNDO is what makes the
// delete recoverable.
func recycle(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	from, err := syscall.UTF16FromString(abs)
	if err != nil {
		return err
	}
	// pFrom is a list and must end with two NULs
	from = append(from, 0)

	op := shFileOpStruct{
		wFunc:  foDelete,
		pFrom:  &from[0],
		fFlags: fofAllowUndo | fofNoConfirmation | fofSilent | fofNoErrorUI,
	}

	if ret, _, _ := procSHFileOperationW.Call(uintptr(unsafe.Pointer(&op))); ret != 0 {
		return fmt.Errorf("moving %s to recycle bin: SHFileOperationW returned %d", abs, ret)
	}
	if op.fAnyOperationsAborted != 0 {
		return fmt.Errorf("moving %s to recycle bin: aborted", abs)
	}
	return nil
}
