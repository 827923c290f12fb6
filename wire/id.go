package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/xerrors"
)

// ID is a JSON-RPC request identifier. Only one of the name or number forms
// is ever set, and isName says which, matching the wire encoding where an
// id is either a JSON string or a JSON number.
//
// The zero value is not a valid id (IsValid reports false) — it stands for
// "no id", the shape a Notification carries instead of a Request.
type ID struct {
	name   string
	number int64
	isName bool
	isSet  bool
}

// NewNumberID returns a new number-form request id.
func NewNumberID(v int64) ID { return ID{number: v, isSet: true} }

// NewStringID returns a new string-form request id.
func NewStringID(v string) ID { return ID{name: v, isName: true, isSet: true} }

// IsValid reports whether id was actually assigned (vs. the zero value,
// which stands for the absence of an id on a notification).
func (id ID) IsValid() bool { return id.isSet }

// Format implements fmt.Formatter. With %q the string form is quoted and
// the number form is prefixed with '#', disambiguating "123" from 123.
func (id ID) Format(f fmt.State, r rune) {
	numF, strF := `%d`, `%s`
	if r == 'q' {
		numF, strF = `#%d`, `%q`
	}
	switch {
	case !id.isSet:
		fmt.Fprint(f, "<none>")
	case id.isName:
		fmt.Fprintf(f, strF, id.name)
	default:
		fmt.Fprintf(f, numF, id.number)
	}
}

func (id ID) String() string { return fmt.Sprintf("%v", id) }

// Equal reports whether two ids refer to the same request. Ids of different
// kinds (string vs. number) are never equal, even if "1" and 1 look alike.
func (id ID) Equal(other ID) bool {
	return id.isSet == other.isSet && id.isName == other.isName &&
		id.name == other.name && id.number == other.number
}

func (id ID) MarshalJSON() ([]byte, error) {
	if !id.isSet {
		return []byte("null"), nil
	}
	if id.isName {
		return json.Marshal(id.name)
	}
	return json.Marshal(id.number)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	*id = ID{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, &id.number); err == nil {
		id.isSet = true
		return nil
	}
	if err := json.Unmarshal(data, &id.name); err != nil {
		return xerrors.Errorf("wire: decode id: %w", err)
	}
	id.isName = true
	id.isSet = true
	return nil
}
