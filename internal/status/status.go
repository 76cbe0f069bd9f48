// Package status реализует запись состояния операции (status track):
// idle → in_flight → {succeeded, failed} → idle.
package status

import (
	"sync"

	"github.com/mmeshcher/storefront/internal/apierr"
)

// Phase описывает фазу операции.
type Phase string

const (
	Idle      Phase = "idle"
	InFlight  Phase = "in_flight"
	Succeeded Phase = "succeeded"
	Failed    Phase = "failed"
)

// Snapshot описывает неизменяемый снимок состояния трека.
type Snapshot struct {
	Phase Phase
	Err   error
}

// Busy сообщает, выполняется ли сейчас операция.
func (s Snapshot) Busy() bool { return s.Phase == InFlight }

// Ticket выдаётся при старте операции и предъявляется при её завершении.
type Ticket struct {
	epoch uint64
	seq   uint64
}

// Track хранит состояние одного логического ресурса.
// Завершение по билету из прошлой эпохи (до Reset) игнорируется.
type Track struct {
	name string

	mu    sync.Mutex
	phase Phase
	err   error
	epoch uint64
	seq   uint64
}

// NewTrack создаёт трек в фазе idle.
func NewTrack(name string) *Track {
	return &Track{name: name, phase: Idle}
}

// Name возвращает имя трека.
func (t *Track) Name() string { return t.name }

// TryBegin переводит трек в in_flight, если на нём нет выполняющейся операции.
func (t *Track) TryBegin() (Ticket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.phase == InFlight {
		return Ticket{}, apierr.New(apierr.KindBusy, "%s: another operation is in flight", t.name)
	}
	return t.beginLocked(), nil
}

// Begin переводит трек в in_flight без проверки занятости.
// Фазу определяет последняя начатая операция.
func (t *Track) Begin() Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.beginLocked()
}

func (t *Track) beginLocked() Ticket {
	t.seq++
	t.phase = InFlight
	t.err = nil
	return Ticket{epoch: t.epoch, seq: t.seq}
}

// Finish фиксирует результат операции. Возвращает false, если билет устарел:
// трек был сброшен или после него стартовала более новая операция.
func (t *Track) Finish(tk Ticket, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tk.epoch != t.epoch || tk.seq != t.seq {
		return false
	}
	if err != nil {
		t.phase = Failed
		t.err = err
	} else {
		t.phase = Succeeded
		t.err = nil
	}
	return true
}

// Live сообщает, что билет выдан в текущей эпохе.
func (t *Track) Live(tk Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return tk.epoch == t.epoch
}

// Reset возвращает трек в idle и делает все ранее выданные билеты устаревшими.
func (t *Track) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.epoch++
	t.phase = Idle
	t.err = nil
}

// Snapshot возвращает текущее состояние трека.
func (t *Track) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Snapshot{Phase: t.phase, Err: t.err}
}
