// Package abi holds the errno values returned across the syscall boundary.
package abi

const (
	ENOENT  = 2
	EIO     = 5
	EBADF   = 9
	ENOMEM  = 12
	EACCES  = 13
	EFAULT  = 14
	EEXIST  = 17
	ENOTDIR = 20
	EISDIR  = 21
	EINVAL  = 22
	EMFILE  = 24
	ESPIPE  = 29
	ENOSYS  = 38
)
