// Package idle reports user activity of a Wayland seat using the [ext-idle-notify-v1] protocol.
//
// [ext-idle-notify-v1]: https://wayland.app/protocols/ext-idle-notify-v1
package idle
