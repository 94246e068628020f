// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package container

import "fmt"

// ObjectKind is the kind of a logical object in the container tree.
// Values are protocol constants.
type ObjectKind uint8

const (
	// KindRegular is an acquired file with a data stream.
	KindRegular ObjectKind = 1

	// KindDirectory is a directory with named children.
	KindDirectory ObjectKind = 2

	// KindSymlink is a symbolic link; its target is stored inline.
	KindSymlink ObjectKind = 3

	// KindHardlink is a second name for another object. Readers
	// resolve it to its target; a hardlink never has its own data.
	KindHardlink ObjectKind = 4

	// KindVirtual is a reconstructed object (carved file, decoded
	// stream) that did not exist as-is on the acquired medium. Reads
	// like a regular file.
	KindVirtual ObjectKind = 5

	// KindSpecial is a fifo, character device, or block device node.
	KindSpecial ObjectKind = 6
)

// String returns the kind's name for diagnostics.
func (k ObjectKind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	case KindHardlink:
		return "hardlink"
	case KindVirtual:
		return "virtual"
	case KindSpecial:
		return "special"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// SpecialType is the subtype of a KindSpecial object.
type SpecialType uint8

const (
	// SpecialFifo is a named pipe.
	SpecialFifo SpecialType = 1

	// SpecialChar is a character device.
	SpecialChar SpecialType = 2

	// SpecialBlock is a block device.
	SpecialBlock SpecialType = 3
)

// ChildRef names one child of a directory object.
type ChildRef struct {
	// Name is the child's name within the directory.
	Name string `cbor:"1,keyasint"`

	// ID is the child object's ID.
	ID uint64 `cbor:"2,keyasint"`
}

// Object is one logical entry in the container's object tree. The
// object ID is stable for the lifetime of one container open session.
type Object struct {
	// ID is the object's identifier, unique within the container.
	ID uint64 `cbor:"1,keyasint"`

	// Kind is the object kind.
	Kind ObjectKind `cbor:"2,keyasint"`

	// Size is the data stream length in bytes. Zero for directories,
	// hardlinks, and special objects; symlinks record their target
	// length here.
	Size uint64 `cbor:"3,keyasint,omitempty"`

	// MTime, ATime, CTime, BTime are unix-second timestamps captured
	// at acquisition (0 = unknown).
	MTime int64 `cbor:"4,keyasint,omitempty"`
	ATime int64 `cbor:"5,keyasint,omitempty"`
	CTime int64 `cbor:"6,keyasint,omitempty"`
	BTime int64 `cbor:"7,keyasint,omitempty"`

	// Children is the ordered child list of a directory.
	Children []ChildRef `cbor:"8,keyasint,omitempty"`

	// LinkTarget is a symlink's target path.
	LinkTarget string `cbor:"9,keyasint,omitempty"`

	// LinkID is a hardlink's target object ID.
	LinkID uint64 `cbor:"10,keyasint,omitempty"`

	// Special is the subtype of a KindSpecial object.
	Special SpecialType `cbor:"11,keyasint,omitempty"`

	// Rdev is the device number of a char or block special object.
	Rdev uint32 `cbor:"12,keyasint,omitempty"`

	// FirstChunk and ChunkCount locate the object's data stream in
	// the container's chunk index.
	FirstChunk uint64 `cbor:"13,keyasint,omitempty"`
	ChunkCount uint32 `cbor:"14,keyasint,omitempty"`
}

// IsDir reports whether the object is a directory.
func (o *Object) IsDir() bool {
	return o.Kind == KindDirectory
}

// HasData reports whether the object carries a readable data stream.
func (o *Object) HasData() bool {
	return o.Kind == KindRegular || o.Kind == KindVirtual
}
