package domain

import derrors "peermesh/pkg/domain-errors"

// Address identifies an independent identity on the mesh. The value is
// opaque to this core; the transport collaborator resolves it to an actual
// endpoint.
type Address string

// ParseAddress constructs an Address from external input.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return "", derrors.New(derrors.CodeInvalidInput, "address must not be empty")
	}
	return Address(s), nil
}

func (a Address) String() string { return string(a) }

// IsEmpty reports whether the address is unset. Several negotiation rules
// treat an empty owner as "defaults to the recipient".
func (a Address) IsEmpty() bool { return a == "" }
