// -----------------------------------------------------------------------
// Result Normalizer - reduces heterogeneous provider responses to one
// canonical artifact locator
// -----------------------------------------------------------------------

package normalize

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/ternarybob/backlot/internal/models"
)

// maxDepth bounds recursion over nested results. Providers nest at most
// two or three levels in practice; anything deeper is treated as
// malformed rather than followed indefinitely.
const maxDepth = 5

// Result is a provider response reduced to a closed set of tagged
// variants at the boundary, so normalization is exhaustive instead of
// shape-sniffing.
type Result interface {
	isResult()
}

// StringResult is a plain locator string.
type StringResult string

// BufferResult is raw artifact bytes, normalized to a base64 data locator.
type BufferResult []byte

// AccessorResult defers resolution to a zero-argument accessor. The
// accessor may perform I/O and may fail.
type AccessorResult func() (Result, error)

// WrapperResult is an object exposing one of the known wrapper fields.
// Fields are consulted in declaration order; the first non-nil wins.
type WrapperResult struct {
	URL    Result
	Video  Result
	Videos []Result
	Output []Result
}

// ArrayResult resolves left-to-right; the first non-empty entry wins.
type ArrayResult []Result

func (StringResult) isResult()   {}
func (BufferResult) isResult()   {}
func (AccessorResult) isResult() {}
func (WrapperResult) isResult()  {}
func (ArrayResult) isResult()    {}

// Resolve reduces a result to one artifact locator. An empty string
// means the response was unresolvable; callers must treat that as a
// result-format error, never as success with an empty artifact.
func Resolve(r Result) string {
	locator, _ := resolve(r, 0)
	return locator
}

func resolve(r Result, depth int) (string, error) {
	if r == nil {
		return "", nil
	}
	if depth >= maxDepth {
		return "", fmt.Errorf("result nesting exceeds %d levels", maxDepth)
	}

	switch v := r.(type) {
	case StringResult:
		return string(v), nil

	case BufferResult:
		if len(v) == 0 {
			return "", nil
		}
		return dataLocator(v), nil

	case AccessorResult:
		inner, err := v()
		if err != nil {
			return "", err
		}
		return resolve(inner, depth+1)

	case WrapperResult:
		if v.URL != nil {
			return resolve(v.URL, depth+1)
		}
		if v.Video != nil {
			return resolve(v.Video, depth+1)
		}
		if len(v.Videos) > 0 {
			return resolve(ArrayResult(v.Videos), depth+1)
		}
		if len(v.Output) > 0 {
			return resolve(ArrayResult(v.Output), depth+1)
		}
		return "", nil

	case ArrayResult:
		for _, entry := range v {
			locator, err := resolve(entry, depth+1)
			if err != nil {
				continue // A failing entry does not block later entries
			}
			if locator != "" {
				return locator, nil
			}
		}
		return "", nil

	default:
		return "", fmt.Errorf("unknown result variant %T", r)
	}
}

// FromValue converts a decoded JSON value (or raw bytes) into a tagged
// Result at the provider boundary. Unrecognized shapes map to nil,
// which Resolve reports as unresolvable.
func FromValue(v interface{}) Result {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if val == "" {
			return nil
		}
		return StringResult(val)
	case []byte:
		if len(val) == 0 {
			return nil
		}
		return BufferResult(val)
	case map[string]interface{}:
		wrapper := WrapperResult{}
		found := false
		if inner, ok := val["url"]; ok {
			wrapper.URL = FromValue(inner)
			found = true
		}
		if inner, ok := val["video"]; ok {
			wrapper.Video = FromValue(inner)
			found = true
		}
		if inner, ok := val["videos"]; ok {
			if list, ok := inner.([]interface{}); ok {
				for _, entry := range list {
					wrapper.Videos = append(wrapper.Videos, FromValue(entry))
				}
				found = true
			}
		}
		if inner, ok := val["output"]; ok {
			switch out := inner.(type) {
			case []interface{}:
				for _, entry := range out {
					wrapper.Output = append(wrapper.Output, FromValue(entry))
				}
			default:
				wrapper.Output = append(wrapper.Output, FromValue(out))
			}
			found = true
		}
		if !found {
			return nil
		}
		return wrapper
	case []interface{}:
		arr := make(ArrayResult, 0, len(val))
		for _, entry := range val {
			arr = append(arr, FromValue(entry))
		}
		return arr
	default:
		return nil
	}
}

// Locator resolves a result and classifies an empty outcome as a
// result-format error so callers cannot mistake it for success.
func Locator(r Result) (string, error) {
	locator, err := resolve(r, 0)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrResultFormat, err)
	}
	if locator == "" {
		return "", fmt.Errorf("%w: no artifact locator in provider response", models.ErrResultFormat)
	}
	return locator, nil
}

// dataLocator encodes raw bytes as a data URL, sniffing the content type
// from the payload.
func dataLocator(data []byte) string {
	mime := http.DetectContentType(data)
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
