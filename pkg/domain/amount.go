package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	dErrors "sanad/pkg/domain-errors"
)

// Amount is a whole-currency value (rials). Inputs may carry "," thousands
// separators, as typed into entry forms.
type Amount int64

// ParseAmount parses "1,000,000", "1000000" and surrounding whitespace.
// Fractions, signs other than a leading '-', and stray characters are rejected.
func ParseAmount(s string) (Amount, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if cleaned == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "amount is required")
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "amount must be a whole number")
	}
	return Amount(n), nil
}

// UnmarshalJSON accepts either a JSON integer or a numeric string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return dErrors.New(dErrors.CodeInvalidInput, "amount must be a whole number")
		}
		parsed, err := ParseAmount(s)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	}
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Amount) Int64() int64 {
	return int64(a)
}

func (a Amount) String() string {
	return strconv.FormatInt(int64(a), 10)
}
