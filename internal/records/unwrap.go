package records

import "strings"

var wrapperKeys = []string{"data", "result"}

// Unwrap isolates callers from payload-shape drift: a raw array, or an array
// nested under "data" or "result", yields its object elements. Anything else
// is treated as an empty collection.
func Unwrap(payload any) []Record {
	switch p := payload.(type) {
	case []any:
		return objects(p)
	case []Record:
		return p
	case map[string]any:
		for _, key := range wrapperKeys {
			if inner, ok := p[key]; ok {
				if arr := Unwrap(inner); len(arr) > 0 {
					return arr
				}
			}
		}
	}
	return nil
}

// UnwrapOne returns the single object carried by payload, looking through a
// "data" or "result" wrapper. It returns nil when there is no object.
func UnwrapOne(payload any) Record {
	p, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	for _, key := range wrapperKeys {
		if inner, ok := p[key].(map[string]any); ok {
			return inner
		}
	}
	return p
}

func objects(arr []any) []Record {
	out := make([]Record, 0, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]any); ok && m != nil {
			out = append(out, m)
		}
	}
	return out
}

// FailureInfo is the normalized failure shape returned by the backend.
type FailureInfo struct {
	Message string
	Code    string
}

var (
	successField = Field{Name: "isSuccess", Aliases: []string{"isSuccess", "IsSuccess", "success"}}
	messageField = Field{Name: "errorMessage", Aliases: []string{"errorMessage", "message", "error"}}
	codeField    = Field{Name: "errorCode", Aliases: []string{"errorCode", "code"}}
)

// Failure reports whether payload is an explicit failure shape, i.e. an
// object carrying isSuccess:false.
func Failure(payload any) (FailureInfo, bool) {
	p, ok := payload.(map[string]any)
	if !ok {
		return FailureInfo{}, false
	}
	v, present := Lookup(p, successField)
	if !present {
		return FailureInfo{}, false
	}
	switch s := v.(type) {
	case bool:
		if s {
			return FailureInfo{}, false
		}
	case string:
		if !strings.EqualFold(strings.TrimSpace(s), "false") {
			return FailureInfo{}, false
		}
	default:
		return FailureInfo{}, false
	}
	info := FailureInfo{Message: String(p, messageField), Code: String(p, codeField)}
	if info.Message == "" {
		info.Message = "request failed"
	}
	return info, true
}
