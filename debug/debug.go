// Package debug gates costly internal checks behind the debug build tag.
package debug

// Assert panics with message if condition is false. The check is compiled out unless
// the debug build tag is set.
func Assert(condition bool, message ...string) {
	if !Debug {
		return
	}
	if !condition {
		if len(message) > 0 {
			panic(message[0])
		}
		panic("assertion failed")
	}
}
