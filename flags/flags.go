// Package flags defines the POSIX mode-bit constants TFS exposes through
// getattr. Trimmed from the full set a general-purpose driver would need
// (no symlinks, devices, sockets, or setuid bits — this filesystem has no
// use for any of them).
package flags

const (
	S_IXOTH = 1 << iota
	S_IWOTH = 1 << iota
	S_IROTH = 1 << iota
	S_IXGRP = 1 << iota
	S_IWGRP = 1 << iota
	S_IRGRP = 1 << iota
	S_IXUSR = 1 << iota
	S_IWUSR = 1 << iota
	S_IRUSR = 1 << iota
)

const S_IFDIR = 0x4000
const S_IFREG = 0x8000
const S_IFMT = 0xf000

const S_IRWXO = S_IXOTH | S_IWOTH | S_IROTH
const S_IRWXG = S_IXGRP | S_IWGRP | S_IRGRP
const S_IRWXU = S_IXUSR | S_IWUSR | S_IRUSR

// DefaultDirMode and DefaultFileMode are the fixed permission bits every
// TFS object carries; this design has no chmod, so there is exactly one
// mode per type (0755, matching the original rufs_getattr's hardcoded
// DIRECTORY_MODE/FILE_MODE).
const DefaultDirMode = S_IFDIR | S_IRWXU | S_IRGRP | S_IXGRP | S_IROTH | S_IXOTH
const DefaultFileMode = S_IFREG | S_IRWXU | S_IRGRP | S_IXGRP | S_IROTH | S_IXOTH
