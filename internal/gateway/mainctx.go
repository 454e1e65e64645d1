package gateway

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MainContext modela el hilo autoritativo del host como un canal de tareas:
// toda mutación de conexión termina en un closure posteado acá en vez de
// mutar directo desde el worker que tenga el resultado a mano.
type MainContext struct {
	tasks chan func()

	mu     sync.Mutex
	closed bool

	log *zap.Logger
}

func NewMainContext(buffer int, log *zap.Logger) *MainContext {
	if buffer <= 0 {
		buffer = 256
	}
	return &MainContext{
		tasks: make(chan func(), buffer),
		log:   log,
	}
}

// Exec postea fn al main context. Si el loop ya cerró, fn se descarta
// (pasa solo durante shutdown; las conexiones ya están muertas).
func (m *MainContext) Exec(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.tasks <- fn:
	default:
		// Canal lleno: el host está saturado. Bloquear acá colgaría al
		// worker, así que se descarta y se deja constancia.
		m.log.Warn("main context queue full, dropping task")
	}
}

// Run procesa tareas hasta que ctx se cancele. Debe correr en exactamente
// una goroutine.
func (m *MainContext) Run(ctx context.Context) error {
	for {
		select {
		case fn := <-m.tasks:
			m.run(fn)
		case <-ctx.Done():
			m.mu.Lock()
			m.closed = true
			m.mu.Unlock()
			// drenar lo que quedó encolado antes de salir
			for {
				select {
				case fn := <-m.tasks:
					m.run(fn)
				default:
					return ctx.Err()
				}
			}
		}
	}
}

func (m *MainContext) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in main context task", zap.Any("panic", r))
		}
	}()
	fn()
}
