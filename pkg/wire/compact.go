// pkg/wire/compact.go
package wire

import (
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/json"
)

const mediaTypeJSON = "application/json"

var minifier = func() *minify.M {
	m := minify.New()
	m.AddFunc(mediaTypeJSON, json.Minify)
	return m
}()

// Compact strips insignificant whitespace from a JSON frame so it fits on one log line.
// Nodes pretty-print their responses; input that is not valid JSON is returned unchanged.
func Compact(data []byte) string {
	out, err := minifier.Bytes(mediaTypeJSON, data)
	if err != nil {
		return string(data)
	}
	return string(out)
}
