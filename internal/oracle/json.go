package oracle

import (
	"encoding/json"

	"github.com/kaptinlin/jsonrepair"
)

// unmarshalJSON unmarshals model output into v, attempting to repair
// malformed JSON. On a syntax error the payload is run through jsonrepair
// once before retrying; any other error is returned as-is.
func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}
