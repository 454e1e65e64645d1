// Package kmutex provee un mutex por clave con refcount: las claves se
// liberan cuando ningún caller las retiene, así el mapa no crece sin tope.
package kmutex

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

type KeyedMutex struct {
	mu   sync.Mutex
	keys map[string]*entry
}

func New() *KeyedMutex {
	return &KeyedMutex{keys: make(map[string]*entry)}
}

// Lock bloquea la clave y devuelve su unlock. Uso típico:
//
//	defer km.Lock(key)()
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.keys[key]
	if !ok {
		e = &entry{}
		k.keys[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.keys, key)
		}
		k.mu.Unlock()
	}
}
