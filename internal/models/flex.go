package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexibleID accepts identifiers the API sends either as JSON strings or numbers.
type FlexibleID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = FlexibleID(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexibleID(n.String())
	return nil
}

// String returns the identifier as text.
func (f FlexibleID) String() string {
	return string(f)
}
