package types

import (
	"encoding/json"
	"fmt"
)

// EntityID identifies a persisted entity. It is a tagged value rather than a
// nullable integer so "new" can never be confused with a stored id of zero:
// the zero EntityID means "not yet persisted", and storage backends only ever
// observe ids assigned by themselves.
type EntityID struct {
	value    int64
	existing bool
}

// NewID returns the identity of an entity that has not been persisted yet.
func NewID() EntityID {
	return EntityID{}
}

// ExistingID returns the identity of an entity already present in storage.
func ExistingID(v int64) EntityID {
	return EntityID{value: v, existing: true}
}

// IsNew reports whether the entity has no stored identity.
func (id EntityID) IsNew() bool {
	return !id.existing
}

// Value returns the stored id. ok is false for a new entity.
func (id EntityID) Value() (v int64, ok bool) {
	return id.value, id.existing
}

func (id EntityID) String() string {
	if !id.existing {
		return "new"
	}
	return fmt.Sprintf("%d", id.value)
}

// MarshalJSON encodes an existing id as its number and a new id as null.
func (id EntityID) MarshalJSON() ([]byte, error) {
	if !id.existing {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON accepts null, 0 and absent fields as "new"; any positive
// integer is an existing id. Clients that always resend the full tree encode
// unsaved rows either way.
func (id *EntityID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = EntityID{}
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid entity id %q: %w", data, err)
	}
	if v <= 0 {
		*id = EntityID{}
		return nil
	}
	*id = ExistingID(v)
	return nil
}
