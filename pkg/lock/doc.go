// Package lock watches the lock state of a user session and reports it to an applock engine.
// The implementation uses the D-Bus interface of systemd-logind, [org.freedesktop.login1].
//
// Lock requests and a LockedHint of true are reported as [applock.ScreenOff], unlock requests
// and a LockedHint of false as [applock.UserPresent].
//
// [org.freedesktop.login1]: https://www.freedesktop.org/software/systemd/man/latest/org.freedesktop.login1.html
package lock
