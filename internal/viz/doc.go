// Package viz draws planar mechanisms in the terminal.
//
//   - [Canvas]: braille sub-pixel canvas, [Viewport] maps world to pixels
//   - [Renderer]: bodies, grounds, slider guides and a traced point path
//   - [Model]: bubbletea viewer over a [Source], live ([LiveSource]) or
//     recorded ([ReplaySource])
//   - [App]: launcher listing the built-in mechanism presets
//
// # Key Bindings
//
//	Space - Pause/Resume
//	R     - Reset to the first frame
//	T     - Cycle color themes
//	G     - Toggle GIF recording
//	C     - Clear the traced path
//	?     - Show help overlay
//	[ ]   - Scrub through history
//	Tab   - Select a controller parameter, ↑/↓ to tune it
package viz
