package app

import (
	"fmt"
	"net/http"

	"github.com/mitchellh/mapstructure"
)

// DecodeData decodes loosely typed data (decoded JSON, a map, a struct)
// into out, matching fields by their json tags. Numeric strings convert
// to numbers and back.
func DecodeData(input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// Bind decodes the request body into out. A body that does not fit out is
// a 400.
func (c *CallContext) Bind(out any) error {
	if c.reqBody == nil {
		return nil
	}
	if err := DecodeData(c.reqBody, out); err != nil {
		return Errorf(http.StatusBadRequest, "%v", err)
	}
	return nil
}
