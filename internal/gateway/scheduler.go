package gateway

import (
	"sync"
	"time"
)

// Task es una tarea agendada cancelable. Cancel es idempotente.
type Task interface {
	Cancel()
}

// Scheduler agenda tareas one-shot y de ritmo fijo. Los fn corren en
// goroutines propias del scheduler; quien necesite mutar una conexión debe
// saltar al main context desde adentro del fn.
type Scheduler interface {
	// After ejecuta fn una vez pasado d.
	After(d time.Duration, fn func()) Task
	// Every ejecuta fn cada d, primera ejecución después de d.
	Every(d time.Duration, fn func()) Task
}

// TimerScheduler es el Scheduler por defecto sobre time.Timer/Ticker.
type TimerScheduler struct{}

func (TimerScheduler) After(d time.Duration, fn func()) Task {
	t := time.AfterFunc(d, fn)
	return &timerTask{stop: func() { t.Stop() }}
}

func (TimerScheduler) Every(d time.Duration, fn func()) Task {
	done := make(chan struct{})
	go func() {
		tick := time.NewTicker(d)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	return &timerTask{stop: func() { close(done) }}
}

type timerTask struct {
	once sync.Once
	stop func()
}

func (t *timerTask) Cancel() { t.once.Do(t.stop) }
