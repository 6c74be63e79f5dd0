package bridgeprotocol

import (
	"encoding/json"
	"reflect"
	"strings"
)

// flattenArguments turns a key/value argument map into the flat frame list
// the wire format uses; the pairs follow map iteration order, which is not
// defined. Arguments whose value is
// nil are omitted entirely, matching the server's null-means-absent rule.
// Typed nil pointers (e.g. a *uuid.UUID left unset) count as nil here too,
// since most callers build their argument maps from optional pointer
// fields rather than bare interface{} nils.
func flattenArguments(args map[string]interface{}) ([][]byte, error) {
	frames := make([][]byte, 0, len(args)*2)
	for k, v := range args {
		if isNilArgument(v) {
			continue
		}
		encoded, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		frames = append(frames, []byte(k), encoded)
	}
	return frames, nil
}

func isNilArgument(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// groupArguments regroups a flat frame list into a key/value map. An odd
// number of frames is a protocol violation.
func groupArguments(frames [][]byte) (map[string][]byte, error) {
	if len(frames)%2 != 0 {
		return nil, invalidMessage("odd number of argument frames (%d)", len(frames))
	}
	kv := make(map[string][]byte, len(frames)/2)
	for i := 0; i < len(frames); i += 2 {
		kv[string(frames[i])] = frames[i+1]
	}
	return kv, nil
}

// encodeValue JSON-encodes a single argument value.
func encodeValue(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// decodeValue JSON-decodes a single argument value into dst.
func decodeValue(raw []byte, dst interface{}) error {
	return json.Unmarshal(raw, dst)
}

// statusIsOK reports whether a status frame indicates success: "OK" or
// "OK:<code>".
func statusIsOK(status string) bool {
	return status == "OK" || strings.HasPrefix(status, "OK:")
}

// statusErrorCode extracts the code from an "ERR:<code>" status, or ""
// for a bare "ERR".
func statusErrorCode(status string) string {
	if rest, ok := strings.CutPrefix(status, "ERR:"); ok {
		return rest
	}
	return ""
}
