package schema

import (
	"fmt"
	"strings"
)

// TypeFamily is the engine-independent category of a column type.
type TypeFamily int

const (
	FamilyInt TypeFamily = iota
	FamilyBigInt
	FamilyFloat
	FamilyDecimal
	FamilyBoolean
	FamilyString
	FamilyDateTime
	FamilyBinary
	FamilyJSON
	FamilyUUID
	FamilyEnum
	FamilyUnsupported
)

var familyNames = []string{
	FamilyInt:         "int",
	FamilyBigInt:      "bigint",
	FamilyFloat:       "float",
	FamilyDecimal:     "decimal",
	FamilyBoolean:     "boolean",
	FamilyString:      "string",
	FamilyDateTime:    "datetime",
	FamilyBinary:      "binary",
	FamilyJSON:        "json",
	FamilyUUID:        "uuid",
	FamilyEnum:        "enum",
	FamilyUnsupported: "unsupported",
}

func (f TypeFamily) String() string {
	if f < 0 || int(f) >= len(familyNames) {
		return "unsupported"
	}
	return familyNames[f]
}

func ParseTypeFamily(s string) (TypeFamily, error) {
	for i, name := range familyNames {
		if strings.EqualFold(name, s) {
			return TypeFamily(i), nil
		}
	}
	return FamilyUnsupported, fmt.Errorf("unknown type family %q", s)
}

func (f TypeFamily) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *TypeFamily) UnmarshalText(b []byte) error {
	parsed, err := ParseTypeFamily(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

type ColumnArity int

const (
	Required ColumnArity = iota
	Nullable
	List
)

func (a ColumnArity) String() string {
	switch a {
	case Nullable:
		return "nullable"
	case List:
		return "list"
	default:
		return "required"
	}
}

type ColumnType struct {
	Family TypeFamily
	// FullDataType is the native type as written in DDL, e.g. "varchar(255)".
	// Empty means the dialect default for Family.
	FullDataType string
	Arity        ColumnArity
}

// SameNativeType compares the native spelling of two types. Unset native
// types only compare equal when the families match.
func (t ColumnType) SameNativeType(other ColumnType) bool {
	if t.Family != other.Family {
		return false
	}
	if t.FullDataType == "" || other.FullDataType == "" {
		return true
	}
	return strings.EqualFold(normalizeNativeType(t.FullDataType), normalizeNativeType(other.FullDataType))
}

func normalizeNativeType(s string) string {
	return strings.Join(strings.Fields(s), "")
}
