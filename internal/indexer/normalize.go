package indexer

import "github.com/tidwall/gjson"

// Normalize extracts a displayable answer from a query response whose shape is
// not fixed across indexer versions. Precedence, first match wins:
//
//  1. answer.answer, when answer is an object
//  2. answer, when it is a scalar
//  3. response
//  4. the whole body: plain text as-is, a JSON string unquoted, anything
//     else as compact JSON
//
// JSON null counts as absent. Normalize never fails.
func Normalize(body []byte) string {
	if !gjson.ValidBytes(body) {
		return string(body)
	}
	root := gjson.ParseBytes(body)

	if root.IsObject() {
		answer := root.Get("answer")
		if answer.IsObject() {
			if inner := answer.Get("answer"); present(inner) {
				return text(inner)
			}
		} else if present(answer) && !answer.IsArray() {
			return text(answer)
		}
		if resp := root.Get("response"); present(resp) {
			return text(resp)
		}
	}

	if root.Type == gjson.String {
		return root.Str
	}
	return root.Get("@ugly").Raw
}

func present(r gjson.Result) bool {
	return r.Exists() && r.Type != gjson.Null
}

// text renders strings unquoted and every other JSON value as compact JSON.
func text(r gjson.Result) string {
	if r.Type == gjson.String {
		return r.Str
	}
	return gjson.Get(r.Raw, "@ugly").Raw
}
