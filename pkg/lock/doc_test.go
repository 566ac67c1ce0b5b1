package lock_test

import (
	"log"
	"os"
	"time"

	"github.com/MatthiasKunnen/applock/pkg/applock"
	"github.com/MatthiasKunnen/applock/pkg/lock"
)

func ExampleSessionWatcher() {
	w, err := lock.NewSessionWatcher(os.Getenv("XDG_SESSION_ID"), nil)
	if err != nil {
		log.Fatalf("Failed to initialize session watcher: %v", err)
	}

	signals := make(chan applock.ScreenSignal, 1)
	unsubscribe, err := w.SubscribeScreen(func(s applock.ScreenSignal) {
		select {
		case signals <- s:
		default:
		}
	})
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}

	stop := time.After(10 * time.Second)
	for {
		select {
		case s := <-signals:
			log.Printf("Session signal: %s", s)
		case <-stop:
			if err := unsubscribe(); err != nil {
				log.Printf("Failed to unsubscribe: %v", err)
			}
			if err := w.Close(); err != nil {
				log.Printf("Failed to close dbus: %v", err)
			}
			return
		}
	}
}
