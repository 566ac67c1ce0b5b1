package idle_test

import (
	"log"
	"time"

	"github.com/MatthiasKunnen/applock/pkg/idle"
)

func Example() {
	m, dispatch, err := idle.NewWaylandIdleController()
	if err != nil {
		log.Fatalf("Unable to initialize wayland idle controller: %v", err)
	}

	activity, err := idle.NewActivityMonitor(m, time.Second)
	if err != nil {
		log.Fatalf("Failed to create activity monitor: %v", err)
	}

	active := make(chan struct{}, 1)
	restore, err := activity.Intercept(func() {
		select {
		case active <- struct{}{}:
		default:
		}
	})
	if err != nil {
		log.Fatalf("Failed to intercept activity: %v", err)
	}
	defer restore()

	for {
		select {
		case dispatchFunc := <-dispatch:
			err := dispatchFunc()
			if err != nil {
				log.Printf("Dispatch error: %v\n", err)
			}
		case <-active:
			log.Printf("User is active\n")
			// restart the idle timer here
		}
	}
}
