package delivery

import (
	"bytes"
	"encoding/json"
	"time"

	"property-delivery-api-server/internal/fault"
)

var errTimestamp = fault.InvalidError("timestamps must be RFC 3339 strings or epoch milliseconds")

// parseTimestamp reads a JSON timestamp written either as an RFC 3339 string or
// as milliseconds since the epoch. Null and absent values return nil.
func parseTimestamp(raw json.RawMessage) (*time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var t time.Time
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, errTimestamp
		}
		return &t, nil
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return nil, errTimestamp
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}

// UnmarshalJSON accepts estimatedDelivery in either wire form.
func (in *RegisterInput) UnmarshalJSON(data []byte) error {
	type plain RegisterInput
	aux := struct {
		*plain
		EstimatedDelivery json.RawMessage `json:"estimatedDelivery"`
	}{plain: (*plain)(in)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	at, err := parseTimestamp(aux.EstimatedDelivery)
	if err != nil {
		return err
	}
	in.EstimatedDelivery = time.Time{}
	if at != nil {
		in.EstimatedDelivery = *at
	}
	return nil
}

// UnmarshalJSON accepts actualDelivery in either wire form.
func (in *StatusInput) UnmarshalJSON(data []byte) error {
	type plain StatusInput
	aux := struct {
		*plain
		ActualDelivery json.RawMessage `json:"actualDelivery"`
	}{plain: (*plain)(in)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	at, err := parseTimestamp(aux.ActualDelivery)
	if err != nil {
		return err
	}
	in.ActualDelivery = at
	return nil
}
