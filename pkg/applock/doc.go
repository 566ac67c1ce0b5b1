// Package applock decides when an application must be considered locked.
//
// An [Engine] consumes lifecycle signals (foreground/background), user activity signals
// (touches, pointer movement) and screen/session signals (screen off, session locked, system
// going to sleep) and turns them into lock transitions. Transitions are reported to the host
// through an [Emitter] as the events onAppLocked, onAppUnlocked, onEnterForeground and
// onEnterBackground. The engine never authenticates anyone: unlocking is always an explicit
// host decision made through [Engine.SetLocked].
//
// Three subsystems can lock the application:
//   - the background timer, which locks after the application spent a configured duration in
//     the background;
//   - the touch-idle timer, which locks after a configured duration without user activity while
//     the application is in the foreground;
//   - the screen-lock detector, which locks immediately when a [ScreenSource] reports that the
//     screen was turned off or the session was locked.
//
// The engine is not safe for concurrent use. All calls must happen on one goroutine, usually
// the one draining a [github.com/MatthiasKunnen/applock/pkg/loop.Loop]. Signal sources and
// timers deliver their callbacks through the [Executor] and [Clock] given in [Platform].
package applock
