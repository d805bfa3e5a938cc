package presence

import (
	"errors"
	"fmt"
)

// ErrStoreMissing classifies a missing-table-class backend error. The
// client downgrades the whole store to a process-lifetime no-op on it.
var ErrStoreMissing = errors.New("presence store missing")

// UnknownAttributeError classifies a write rejected because the store's
// schema does not know one of the record's attributes.
type UnknownAttributeError struct {
	Name string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("unknown presence attribute %q", e.Name)
}

// UnknownAttribute extracts the attribute name from an error of that
// class, if it is one.
func UnknownAttribute(err error) (string, bool) {
	var ua *UnknownAttributeError
	if errors.As(err, &ua) {
		return ua.Name, true
	}
	return "", false
}
