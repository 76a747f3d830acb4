package domain

import derrors "peermesh/pkg/domain-errors"

// ValueType classifies the payload of an attribute. Succession must never
// change the value type of a chain, so the type is part of the domain
// vocabulary rather than free-form.
type ValueType string

const (
	ValueTypeGivenName         ValueType = "GivenName"
	ValueTypeSurname           ValueType = "Surname"
	ValueTypeEMailAddress      ValueType = "EMailAddress"
	ValueTypePhoneNumber       ValueType = "PhoneNumber"
	ValueTypeBirthDate         ValueType = "BirthDate"
	ValueTypeNationality       ValueType = "Nationality"
	ValueTypeStreetAddress     ValueType = "StreetAddress"
	ValueTypeStreet            ValueType = "Street"
	ValueTypeHouseNumber       ValueType = "HouseNumber"
	ValueTypeZipCode           ValueType = "ZipCode"
	ValueTypeCity              ValueType = "City"
	ValueTypeCountry           ValueType = "Country"
	ValueTypeProprietaryString ValueType = "ProprietaryString"
	ValueTypeConsent           ValueType = "Consent"
)

// validValueTypes is the single source of truth for supported value types.
var validValueTypes = map[ValueType]bool{
	ValueTypeGivenName:         true,
	ValueTypeSurname:           true,
	ValueTypeEMailAddress:      true,
	ValueTypePhoneNumber:       true,
	ValueTypeBirthDate:         true,
	ValueTypeNationality:       true,
	ValueTypeStreetAddress:     true,
	ValueTypeStreet:            true,
	ValueTypeHouseNumber:       true,
	ValueTypeZipCode:           true,
	ValueTypeCity:              true,
	ValueTypeCountry:           true,
	ValueTypeProprietaryString: true,
	ValueTypeConsent:           true,
}

// complexValueTypes decompose into child attributes on creation.
var complexValueTypes = map[ValueType][]ValueType{
	ValueTypeStreetAddress: {ValueTypeStreet, ValueTypeHouseNumber, ValueTypeZipCode, ValueTypeCity},
}

// ParseValueType constructs a ValueType from external input.
func ParseValueType(s string) (ValueType, error) {
	if s == "" {
		return "", derrors.New(derrors.CodeInvalidInput, "value type must not be empty")
	}
	v := ValueType(s)
	if !validValueTypes[v] {
		return "", derrors.Newf(derrors.CodeInvalidInput, "unsupported value type '%s'", s)
	}
	return v, nil
}

func (v ValueType) String() string { return string(v) }

// IsComplex reports whether attributes of this type decompose into child
// attributes.
func (v ValueType) IsComplex() bool {
	_, ok := complexValueTypes[v]
	return ok
}

// ChildTypes returns the value types of the children a complex type
// decomposes into, in canonical order.
func (v ValueType) ChildTypes() []ValueType {
	return complexValueTypes[v]
}
