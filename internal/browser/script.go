package browser

import (
	"encoding/json"
	"fmt"

	"github.com/loykin/glosar/internal/resolve"
)

// Element operations understood by elementJS.
const (
	opCount       = "count"
	opAttached    = "attached"
	opVisible     = "visible"
	opValue       = "value"
	opInnerText   = "innerText"
	opTextContent = "textContent"
	opFill        = "fill"
	opClick       = "click"
)

// elementJS resolves the first match of (kind, expr) in the evaluating
// document and applies op. Missing elements throw, except for count,
// attached and visible.
const elementJS = `(function (kind, expr, op, arg) {
  function first() {
    if (kind === "xpath") {
      return document.evaluate(expr, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
    }
    return document.querySelector(expr);
  }
  if (op === "count") {
    if (kind === "xpath") {
      return document.evaluate("count(" + expr + ")", document, null, XPathResult.NUMBER_TYPE, null).numberValue;
    }
    return document.querySelectorAll(expr).length;
  }
  var el = first();
  if (op === "attached") return el !== null;
  if (op === "visible") {
    if (!el || !el.isConnected) return false;
    var st = window.getComputedStyle(el);
    return st.visibility !== "hidden" && st.display !== "none" && el.getClientRects().length > 0;
  }
  if (!el) throw new Error("element not attached: " + expr);
  switch (op) {
  case "value":
    if (!("value" in el)) throw new Error("not an input element: " + expr);
    return String(el.value);
  case "innerText":
    return String(el.innerText || "");
  case "textContent":
    return String(el.textContent || "");
  case "fill":
    el.focus();
    var proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype
      : el instanceof HTMLSelectElement ? HTMLSelectElement.prototype
      : el instanceof HTMLInputElement ? HTMLInputElement.prototype : null;
    if (proto) {
      Object.getOwnPropertyDescriptor(proto, "value").set.call(el, arg);
    } else if (el.isContentEditable) {
      el.textContent = arg;
    } else {
      throw new Error("element is not fillable: " + expr);
    }
    el.dispatchEvent(new Event("input", { bubbles: true }));
    el.dispatchEvent(new Event("change", { bubbles: true }));
    return true;
  case "click":
    el.scrollIntoView({ block: "center", inline: "center" });
    el.click();
    return true;
  }
  throw new Error("unknown operation: " + op);
})(%s, %s, %s, %s)`

const readyStateJS = `document.readyState`

// buildScript renders elementJS for q with JSON-encoded arguments.
func buildScript(q resolve.Query, op, arg string) (string, error) {
	args := make([]any, 0, 4)
	for _, v := range []string{q.Kind.String(), q.Expr, op, arg} {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		args = append(args, string(b))
	}
	return fmt.Sprintf(elementJS, args...), nil
}
