// Package ops holds the engine's exported operations.
//
// Operations are pure: they take values already marshaled by package boundary,
// keep nothing between calls, and never touch linear memory themselves.
package ops

import "fmt"

// GreetingSuffix ends every greeting.
const GreetingSuffix = "This message is computed in Rust 🦀"

// Greet embeds name verbatim in a fixed greeting. No length limit applies.
func Greet(name string) string {
	return fmt.Sprintf("Hello, %s! %s", name, GreetingSuffix)
}
