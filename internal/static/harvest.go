// internal/static/harvest.go
package static

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"
)

// harvestScriptGlobals runs the page's inline scripts in a goja sandbox with
// a skeletal window/document and returns the non-standard globals they
// assign. Many listing sites embed their catalog as a JS literal; this
// recovers it without a browser. Script errors are expected and ignored:
// most page scripts touch DOM APIs the sandbox does not have.
func harvestScriptGlobals(doc *goquery.Document, pageURL string) map[string]string {
	vm := goja.New()

	loc := map[string]any{"href": pageURL}
	_ = vm.Set("window", vm.GlobalObject())
	_ = vm.Set("self", vm.GlobalObject())
	_ = vm.Set("location", loc)
	_ = vm.Set("document", map[string]any{"location": loc})
	_ = vm.Set("console", map[string]any{
		"log":   func(goja.FunctionCall) goja.Value { return nil },
		"warn":  func(goja.FunctionCall) goja.Value { return nil },
		"error": func(goja.FunctionCall) goja.Value { return nil },
	})

	ran := 0
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		if _, external := sel.Attr("src"); external {
			return
		}
		src := sel.Text()
		if src == "" {
			return
		}
		if _, err := vm.RunString(src); err == nil {
			ran++
		}
	})

	harvested := make(map[string]string)
	for _, key := range vm.GlobalObject().Keys() {
		if standardGlobals[key] {
			continue
		}
		val := vm.Get(key)
		if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
			continue
		}
		if exported := val.Export(); exported != nil {
			harvested[key] = fmt.Sprintf("%v", exported)
		}
	}

	if len(harvested) > 0 {
		log.Debug().Int("scripts", ran).Int("globals", len(harvested)).Msg("Harvested inline script data")
	}
	return harvested
}

var standardGlobals = map[string]bool{
	"window": true, "self": true, "document": true, "location": true, "console": true,
	"Object": true, "Array": true, "String": true, "Number": true, "Boolean": true,
	"Date": true, "Math": true, "JSON": true, "RegExp": true, "Error": true,
	"Function": true, "Symbol": true, "Promise": true, "Proxy": true, "Reflect": true,
	"Map": true, "Set": true, "WeakMap": true, "WeakSet": true, "ArrayBuffer": true,
	"parseInt": true, "parseFloat": true, "isNaN": true, "isFinite": true,
	"encodeURI": true, "decodeURI": true, "encodeURIComponent": true, "decodeURIComponent": true,
	"undefined": true, "NaN": true, "Infinity": true, "globalThis": true, "eval": true,
	"escape": true, "unescape": true,
}
