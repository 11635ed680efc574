// Package record defines the fixed-layout Command and Result records shared by
// the engine, the software kernels and accelerator work queues, together with
// the opcode, flag and status encodings that live inside them.
//
// Offsets are kept in one table per record kind (see [CommandSlot] and
// [ResultSlot]); the typed accessors on [Command] and [Result] are thin
// wrappers over that table, so a field that does not exist for an opcode
// panics instead of silently aliasing another field.
package record

import "errors"

// ErrRecordTooShort is returned when a wire image is shorter than a record.
var ErrRecordTooShort = errors.New("record is too short")
