package domain

import (
	"bytes"
	"errors"
	"math"
	"strconv"
)

var errNotInteger = errors.New("not an integral number")

// Number is an int64 counter that also accepts integral JSON floats such as
// 500.0 or 1e3; null decodes as 0
type Number int64

// UnmarshalJSON implements json.Unmarshaler
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}

	s := string(data)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*n = Number(v)
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return errNotInteger
	}
	*n = Number(f)
	return nil
}
