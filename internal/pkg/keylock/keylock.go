// Package keylock реализует взаимное исключение по строковому ключу.
// Используется хранилищем попыток: не более одной мутации на attemptID
// одновременно, при этом попытки с разными ID не блокируют друг друга.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex - набор мьютексов, создаваемых по требованию на ключ.
// Запись о ключе удаляется, когда последний держатель освобождает его,
// поэтому карта не растёт вместе с количеством исторических ключей.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New создает новый KeyedMutex
func New() *KeyedMutex {
	return &KeyedMutex{
		entries: make(map[string]*entry),
	}
}

// Lock захватывает мьютекс для ключа, блокируясь при необходимости
func (k *KeyedMutex) Lock(key string) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock освобождает мьютекс для ключа.
// Вызов без предшествующего Lock - ошибка программирования.
func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		k.mu.Unlock()
		panic("keylock: unlock of unlocked key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}
