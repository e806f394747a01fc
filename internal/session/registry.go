// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package session

import (
	"context"
	"sync"
)

// TaskKey identifies a slot in the per-session task registry (spec §3
// "Task registry"): "stt", "llm", "tts", "warmer".
type TaskKey string

const (
	TaskSTT TaskKey = "stt"
	TaskLLM TaskKey = "llm"
	TaskTTS TaskKey = "tts"
)

// task is one cancellable unit of work held by the registry.
type task struct {
	cancel context.CancelFunc
	done   <-chan struct{}
}

// Registry is the per-session map from logical key to the currently-running
// cancellable task for that slot (spec §3/§5). At most one task per key;
// replacing a key swaps in the new task and cancels the previous one, and
// does not return until the previous one has exited.
// Cancellation flows one way: registry → task (spec §9).
type Registry struct {
	mu    sync.Mutex
	tasks map[TaskKey]*task
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[TaskKey]*task)}
}

// Set installs a new task under key, then cancels any previous occupant of
// that key and waits for it to exit before returning. done should be closed
// by the caller when the task's goroutine has fully exited.
func (r *Registry) Set(key TaskKey, cancel context.CancelFunc, done <-chan struct{}) {
	r.mu.Lock()
	prev := r.tasks[key]
	r.tasks[key] = &task{cancel: cancel, done: done}
	r.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}
}

// Release removes the task under key if, and only if, it is still the one
// identified by done. A task that finishes on its own (rather than via
// Cancel) calls this to clear its slot; the identity check means a task
// that raced against a concurrent Set (which already replaced it) does not
// clobber its successor.
func (r *Registry) Release(key TaskKey, done <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[key]; ok && sameDone(t.done, done) {
		delete(r.tasks, key)
	}
}

func sameDone(a, b <-chan struct{}) bool {
	return a == b
}

// Cancel cancels and removes the task under key, if any, waiting for it to
// finish. It reports whether a task was actually present to cancel, so a
// caller can tell a live cancellation apart from a no-op against a slot
// that had already cleared itself (e.g. the turn it meant to cancel had
// already completed).
func (r *Registry) Cancel(key TaskKey) bool {
	r.mu.Lock()
	t := r.tasks[key]
	delete(r.tasks, key)
	r.mu.Unlock()

	if t == nil {
		return false
	}
	t.cancel()
	<-t.done
	return true
}

// CancelAll cancels every task in the registry and clears it (spec §4.5
// cancel_active_streams). Tasks are cancelled concurrently so one slow
// drain does not delay another.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = make(map[TaskKey]*task)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range tasks {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.cancel()
			<-t.done
		}()
	}
	wg.Wait()
}

// Len reports the number of currently-registered tasks. Spec §8 invariant:
// for all sessions and times, |registry| ≤ 4.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Has reports whether key currently has a running task.
func (r *Registry) Has(key TaskKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[key]
	return ok
}
