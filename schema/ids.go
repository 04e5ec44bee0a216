package schema

import "github.com/google/uuid"

// InternalID is the opaque 16-byte identifier of a document revision.
type InternalID = uuid.UUID

// Timestamp is the monotonic 64-bit instant at which a document revision
// became visible.
type Timestamp uint64

// CreationTime is the floating-point-seconds instant a document was first
// created, used only as a ranking tie-break.
type CreationTime float64
